// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"guild-bot/internal/model"
	"guild-bot/internal/progression"
	"guild-bot/internal/regen"
	"guild-bot/internal/repository"
	"guild-bot/internal/service"
	"guild-bot/internal/workout"
)

// Progress is the subset of service.ProgressService the handlers call.
type Progress interface {
	EnsureUser(ctx context.Context, userID int64, username string) (*model.User, bool, error)
	GetProfile(ctx context.Context, userID int64) (*service.Profile, error)
	SetTimezone(ctx context.Context, userID int64, tz string) error
	Leaderboard(ctx context.Context, limit int) ([]*model.User, error)
	SubmitWorkout(ctx context.Context, userID int64, sub service.WorkoutSubmission) (*service.WorkoutResult, error)
	CompleteTimedWorkout(ctx context.Context, userID int64, tw service.TimedWorkout) (*service.WorkoutResult, error)
}

// Daily is the subset of service.DailyService the handlers call.
type Daily interface {
	TodayProgress(ctx context.Context, userID int64, tz string) (*model.DailyProgress, error)
	CompleteQuest(ctx context.Context, userID int64, tz string, quest model.Quest) (*service.QuestResult, error)
}

// Timezones resolves a user's stored timezone.
type Timezones interface {
	Resolve(ctx context.Context, userID int64) (string, error)
}

// GuildHandler handles every guild command.
type GuildHandler struct {
	progress  Progress
	daily     Daily
	timezones Timezones
	timers    *workout.Tracker
	regen     *regen.Registry
}

// NewGuildHandler creates a new GuildHandler.
func NewGuildHandler(progress Progress, daily Daily, timezones Timezones, timers *workout.Tracker, registry *regen.Registry) *GuildHandler {
	return &GuildHandler{
		progress:  progress,
		daily:     daily,
		timezones: timezones,
		timers:    timers,
		regen:     registry,
	}
}

func displayName(sender *tele.User) string {
	if sender.Username != "" {
		return sender.Username
	}
	return sender.FirstName
}

// ensure creates the sender's character on first contact.
func (h *GuildHandler) ensure(ctx context.Context, sender *tele.User) error {
	_, _, err := h.progress.EnsureUser(ctx, sender.ID, displayName(sender))
	return err
}

// userMessage turns a service error into something safe to show. ok is
// false for errors the user cannot act on.
func userMessage(err error) (msg string, ok bool) {
	var verr *progression.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Sprintf("❌ Invalid workout: %s", verr.Error()), true
	case errors.Is(err, repository.ErrUserNotFound):
		return "❌ No character yet, send /start first", true
	case errors.Is(err, service.ErrInvalidTimezone):
		return "❌ Unknown timezone, use an IANA name like Europe/Berlin", true
	case errors.Is(err, service.ErrInvalidQuest):
		return "❌ Unknown quest, try: hydration, steps, protein, sleep", true
	case errors.Is(err, service.ErrInvalidWorkout):
		return "❌ Invalid workout", true
	case errors.Is(err, workout.ErrTimerActive):
		return "⏱ A workout timer is already running, /done to stop it", true
	case errors.Is(err, workout.ErrNoTimer):
		return "⏱ No workout timer running, start one with /train <minutes>", true
	case errors.Is(err, workout.ErrInvalidEstimate):
		return "❌ The planned duration must be at least one minute", true
	case errors.Is(err, workout.ErrInvalidChoice):
		return "❌ Pick actual, planned or send /manual <minutes>", true
	case errors.Is(err, workout.ErrInvalidState), errors.Is(err, workout.ErrNotComplete):
		return "⏱ The timer can't do that right now", true
	default:
		return "❌ Something went wrong, please try again later", false
	}
}

func (h *GuildHandler) replyErr(c tele.Context, op string, err error) error {
	msg, ok := userMessage(err)
	if !ok {
		log.Error().Err(err).Str("op", op).Int64("user_id", c.Sender().ID).Msg("Command failed")
	}
	return c.Reply(msg)
}

func (h *GuildHandler) timezone(ctx context.Context, userID int64) string {
	tz, err := h.timezones.Resolve(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to resolve timezone")
		return ""
	}
	return tz
}
