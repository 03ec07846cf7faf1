package handler

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"
)

const helpText = "Commands:\n" +
	"/me - character sheet\n" +
	"/lift <minutes> [volume kg] [exercises] - log a lifting session\n" +
	"/cardio <minutes> [rpe] - log a cardio session\n" +
	"/train <minutes> [category] - start the workout timer\n" +
	"/done - stop the timer\n" +
	"/quests - today's quests\n" +
	"/quest <name> - complete a quest\n" +
	"/hp - current HP\n" +
	"/dungeon, /town - move around\n" +
	"/timezone <zone> - set your timezone\n" +
	"/top - leaderboard"

// HandleStart creates the sender's character if needed.
func (h *GuildHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, created, err := h.progress.EnsureUser(ctx, sender.ID, displayName(sender))
	if err != nil {
		return h.replyErr(c, "start", err)
	}

	if created {
		return c.Reply(fmt.Sprintf("🎉 Welcome to the guild, @%s!\n\nYour journey starts at level %d.\n\n%s",
			displayName(sender), user.Level, helpText))
	}
	return c.Reply(fmt.Sprintf("👋 Welcome back @%s, level %d.\n\n%s", displayName(sender), user.Level, helpText))
}

// HandleMe shows the sender's character sheet.
func (h *GuildHandler) HandleMe(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if err := h.ensure(ctx, sender); err != nil {
		return h.replyErr(c, "me", err)
	}

	profile, err := h.progress.GetProfile(ctx, sender.ID)
	if err != nil {
		return h.replyErr(c, "me", err)
	}
	return c.Reply(formatProfile(profile))
}

// HandleTimezone sets the timezone daily quests roll over in.
func (h *GuildHandler) HandleTimezone(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /timezone <zone>, e.g. /timezone Europe/Berlin")
	}
	if err := h.ensure(ctx, sender); err != nil {
		return h.replyErr(c, "timezone", err)
	}
	if err := h.progress.SetTimezone(ctx, sender.ID, args[0]); err != nil {
		return h.replyErr(c, "timezone", err)
	}
	return c.Reply(fmt.Sprintf("🌍 Timezone set to %s", args[0]))
}

// HandleTop shows the top 10 characters by experience.
func (h *GuildHandler) HandleTop(c tele.Context) error {
	users, err := h.progress.Leaderboard(context.Background(), 10)
	if err != nil {
		return h.replyErr(c, "top", err)
	}
	if len(users) == 0 {
		return c.Reply("📊 No adventurers yet")
	}
	return c.Reply(formatLeaderboard(users))
}
