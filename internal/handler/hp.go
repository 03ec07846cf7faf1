package handler

import (
	"context"

	tele "gopkg.in/telebot.v3"
)

// Routes the bot moves characters between. Only the dungeon is exempt from regen.
const (
	RouteTown    = "town"
	RouteDungeon = "dungeon"
)

// HandleHP shows HP after applying pending regeneration.
func (h *GuildHandler) HandleHP(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	svc, err := h.regen.Get(context.Background(), sender.ID)
	if err != nil {
		return h.replyErr(c, "hp", err)
	}
	return c.Reply(formatHP(svc.ForceTick(), svc.Route()))
}

// HandleDungeon enters the dungeon, where HP does not regenerate.
func (h *GuildHandler) HandleDungeon(c tele.Context) error {
	return h.navigate(c, RouteDungeon, "⚔️ You enter the dungeon. No rest down here.")
}

// HandleTown returns to town.
func (h *GuildHandler) HandleTown(c tele.Context) error {
	return h.navigate(c, RouteTown, "🏘 Back in town. HP regenerates over time.")
}

func (h *GuildHandler) navigate(c tele.Context, route, msg string) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	svc, err := h.regen.Get(context.Background(), sender.ID)
	if err != nil {
		return h.replyErr(c, "navigate", err)
	}
	state := svc.Navigate(route)
	return c.Reply(msg + "\n" + formatHP(state, route))
}
