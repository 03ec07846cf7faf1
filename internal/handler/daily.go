package handler

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"guild-bot/internal/model"
)

// HandleQuests shows today's quest sheet.
func (h *GuildHandler) HandleQuests(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if err := h.ensure(ctx, sender); err != nil {
		return h.replyErr(c, "quests", err)
	}

	progress, err := h.daily.TodayProgress(ctx, sender.ID, h.timezone(ctx, sender.ID))
	if err != nil {
		return h.replyErr(c, "quests", err)
	}
	return c.Reply(formatQuests(progress))
}

// HandleQuest completes one of today's quests.
func (h *GuildHandler) HandleQuest(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /quest <hydration|steps|protein|sleep>")
	}
	quest, ok := model.ParseQuest(strings.ToLower(args[0]))
	if !ok {
		return c.Reply("❌ Unknown quest, try: hydration, steps, protein, sleep")
	}
	if err := h.ensure(ctx, sender); err != nil {
		return h.replyErr(c, "quest", err)
	}

	res, err := h.daily.CompleteQuest(ctx, sender.ID, h.timezone(ctx, sender.ID), quest)
	if err != nil {
		return h.replyErr(c, "quest", err)
	}

	var b strings.Builder
	b.WriteString(formatQuests(res.Progress))
	if res.StreakCredited && res.User != nil {
		fmt.Fprintf(&b, "\n🔥 Streak: %d days", res.User.CurrentStreak)
	}
	if res.BonusXP > 0 {
		fmt.Fprintf(&b, "\n🎁 All quests done: +%d XP", res.BonusXP)
	}
	if res.FreezeAwarded {
		b.WriteString("\n🧊 Earned a streak freeze")
	}
	return c.Reply(b.String())
}
