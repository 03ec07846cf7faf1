package handler

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"guild-bot/internal/model"
	"guild-bot/internal/regen"
	"guild-bot/internal/repository"
	"guild-bot/internal/service"
	"guild-bot/internal/workout"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	h        *GuildHandler
	progress *fakeProgress
	daily    *fakeDaily
	clock    *clockwork.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	tracker := workout.NewTracker(clock, workout.NewMemoryStore(), workout.Options{}, nil)
	registry := regen.NewRegistry(clock, regen.NewMemoryStore(), regen.Options{IsExempt: regen.ExemptRoutes(RouteDungeon)}, nil)
	t.Cleanup(func() {
		tracker.Close()
		registry.StopAll()
	})

	progress := newFakeProgress()
	daily := &fakeDaily{}
	return &fixture{
		h:        NewGuildHandler(progress, daily, progress, tracker, registry),
		progress: progress,
		daily:    daily,
		clock:    clock,
	}
}

func TestHandleStart(t *testing.T) {
	f := setup(t)

	c := newContext(1)
	require.NoError(t, f.h.HandleStart(c))
	assert.Contains(t, c.lastReply(), "Welcome to the guild, @alice")

	require.NoError(t, f.h.HandleStart(c))
	assert.Contains(t, c.lastReply(), "Welcome back @alice")
}

func TestHandleMe(t *testing.T) {
	f := setup(t)

	c := newContext(1)
	require.NoError(t, f.h.HandleMe(c))
	assert.Contains(t, c.lastReply(), "Level 1")
	assert.Contains(t, c.lastReply(), "@alice")
}

func TestHandleTimezone(t *testing.T) {
	f := setup(t)

	c := newContext(1)
	require.NoError(t, f.h.HandleTimezone(c))
	assert.Contains(t, c.lastReply(), "Usage")

	c = newContext(1, "Mars/Base")
	require.NoError(t, f.h.HandleTimezone(c))
	assert.Contains(t, c.lastReply(), "Unknown timezone")

	c = newContext(1, "Europe/Berlin")
	require.NoError(t, f.h.HandleTimezone(c))
	assert.Contains(t, c.lastReply(), "Europe/Berlin")
	assert.Equal(t, "Europe/Berlin", f.progress.timezones[1])
}

func TestHandleLift(t *testing.T) {
	f := setup(t)

	c := newContext(1, "abc")
	require.NoError(t, f.h.HandleLift(c))
	assert.Contains(t, c.lastReply(), "Minutes")

	c = newContext(1, "45", "6000", "5")
	require.NoError(t, f.h.HandleLift(c))
	require.Len(t, f.progress.submissions, 1)
	sum := f.progress.submissions[0].Summary
	assert.Equal(t, 45, sum.DurationMinutes)
	assert.Equal(t, 6000.0, sum.TotalVolumeKg)
	assert.Equal(t, 5, sum.ExerciseCount)
	// 45*5 + 50 + 5*5
	assert.Contains(t, c.lastReply(), "+300 XP")
}

func TestHandleCardio(t *testing.T) {
	f := setup(t)

	c := newContext(1, "10", "5")
	require.NoError(t, f.h.HandleCardio(c))
	require.Len(t, f.progress.submissions, 1)
	act := f.progress.submissions[0].Activities[0]
	assert.Equal(t, 600.0, act.DurationSeconds)
	assert.Equal(t, 5.0, act.RPE)
	assert.True(t, act.Completed)
	assert.Contains(t, c.lastReply(), "+40 XP")

	c = newContext(1, "10", "11")
	require.NoError(t, f.h.HandleCardio(c))
	assert.Contains(t, c.lastReply(), "Invalid workout")
}

func TestTimer_CompletesWithinRange(t *testing.T) {
	f := setup(t)

	c := newContext(1, "30", "cardio")
	require.NoError(t, f.h.HandleTrain(c))
	assert.Contains(t, c.lastReply(), "Timer started")

	c = newContext(1, "30")
	require.NoError(t, f.h.HandleTrain(c))
	assert.Contains(t, c.lastReply(), "already running")

	f.clock.Advance(28 * time.Minute)

	c = newContext(1)
	require.NoError(t, f.h.HandleDone(c))
	assert.Contains(t, c.lastReply(), "+150 XP")
	assert.Empty(t, c.markups)
	require.Len(t, f.progress.timed, 1)
	assert.Equal(t, service.TimedWorkout{
		EstimatedMinutes: 30,
		FinalMinutes:     28,
		Category:         "cardio",
		StartedAt:        time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}, f.progress.timed[0])

	c = newContext(1)
	require.NoError(t, f.h.HandleDone(c))
	assert.Contains(t, c.lastReply(), "No workout timer")
}

func TestTimer_ConfirmationButtons(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.h.HandleTrain(newContext(1, "60")))
	f.clock.Advance(10 * time.Minute)

	c := newContext(1)
	require.NoError(t, f.h.HandleDone(c))
	assert.Contains(t, c.lastReply(), "about 10 min but planned 60")
	require.Len(t, c.markups, 1)
	require.Len(t, c.markups[0].InlineKeyboard, 1)
	assert.Len(t, c.markups[0].InlineKeyboard[0], 2)

	c = newContext(1)
	require.NoError(t, f.h.HandleTimerCallback(c, "sideways"))
	require.Len(t, c.responses, 1)
	assert.Contains(t, c.responses[0].Text, "Pick actual")

	c = newContext(1)
	require.NoError(t, f.h.HandleTimerCallback(c, string(workout.ChoiceActual)))
	require.Len(t, c.responses, 1)
	assert.Equal(t, "✅ Workout recorded", c.responses[0].Text)
	require.Len(t, f.progress.timed, 1)
	assert.Equal(t, 10, f.progress.timed[0].FinalMinutes)
	assert.Equal(t, 60, f.progress.timed[0].EstimatedMinutes)
}

func TestTimer_Manual(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.h.HandleTrain(newContext(1, "20")))
	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.h.HandleDone(newContext(1)))

	c := newContext(1, "45")
	require.NoError(t, f.h.HandleManual(c))
	require.Len(t, f.progress.timed, 1)
	assert.Equal(t, 45, f.progress.timed[0].FinalMinutes)
}

func TestTimer_FailedCreditKeepsTimer(t *testing.T) {
	f := setup(t)
	f.progress.failTimed = true

	require.NoError(t, f.h.HandleTrain(newContext(1, "30")))
	f.clock.Advance(30 * time.Minute)

	c := newContext(1)
	require.NoError(t, f.h.HandleDone(c))
	assert.Contains(t, c.lastReply(), "Something went wrong")

	f.progress.failTimed = false
	require.NoError(t, f.h.HandleManual(newContext(1, "30")))
	assert.Empty(t, f.progress.timed)

	// The completed timer survived and can be cancelled.
	c = newContext(1)
	require.NoError(t, f.h.HandleCancel(c))
	assert.Contains(t, c.lastReply(), "discarded")
}

func TestHandleQuest(t *testing.T) {
	f := setup(t)
	f.progress.timezones[1] = "Asia/Tokyo"

	c := newContext(1, "yoga")
	require.NoError(t, f.h.HandleQuest(c))
	assert.Contains(t, c.lastReply(), "Unknown quest")
	assert.Empty(t, f.daily.completed)

	c = newContext(1, "Sleep")
	require.NoError(t, f.h.HandleQuest(c))
	assert.Equal(t, []model.Quest{model.QuestSleep}, f.daily.completed)
	assert.Equal(t, "Asia/Tokyo", f.daily.lastTZ)
	reply := c.lastReply()
	assert.Contains(t, reply, "4/4 done")
	assert.Contains(t, reply, "Streak: 4 days")
	assert.Contains(t, reply, "+50 XP")
	assert.Contains(t, reply, "streak freeze")
}

func TestHandleQuests(t *testing.T) {
	f := setup(t)

	c := newContext(1)
	require.NoError(t, f.h.HandleQuests(c))
	assert.Contains(t, c.lastReply(), "Quests for 2024-03-10")
	assert.Contains(t, c.lastReply(), "1/4 done")
}

func TestHandleHPAndRoutes(t *testing.T) {
	f := setup(t)

	c := newContext(1)
	require.NoError(t, f.h.HandleHP(c))
	assert.Contains(t, c.lastReply(), "HP 100/100")
	assert.Contains(t, c.lastReply(), "📍 town")

	c = newContext(1)
	require.NoError(t, f.h.HandleDungeon(c))
	assert.Contains(t, c.lastReply(), "📍 dungeon")

	svc, err := f.h.regen.Get(t.Context(), 1)
	require.NoError(t, err)
	svc.SetStats(50, 100)
	f.clock.Advance(10 * time.Minute)

	c = newContext(1)
	require.NoError(t, f.h.HandleHP(c))
	assert.Contains(t, c.lastReply(), "HP 50/100")

	c = newContext(1)
	require.NoError(t, f.h.HandleTown(c))
	assert.Contains(t, c.lastReply(), "HP 50/100")

	f.clock.Advance(10 * time.Minute)
	c = newContext(1)
	require.NoError(t, f.h.HandleHP(c))
	assert.Contains(t, c.lastReply(), "HP 60/100")
}

func TestHandleTop(t *testing.T) {
	f := setup(t)

	c := newContext(1)
	require.NoError(t, f.h.HandleTop(c))
	assert.Contains(t, c.lastReply(), "No adventurers")

	require.NoError(t, f.h.HandleStart(newContext(1)))
	c = newContext(1)
	require.NoError(t, f.h.HandleTop(c))
	assert.Contains(t, c.lastReply(), "🥇 @alice: Lv 1 (0 XP)")
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
		ok   bool
	}{
		{repository.ErrUserNotFound, "No character yet", true},
		{workout.ErrNoTimer, "No workout timer", true},
		{service.ErrInvalidQuest, "Unknown quest", true},
		{errors.New("pool closed"), "Something went wrong", false},
	}
	for _, tt := range tests {
		msg, ok := userMessage(tt.err)
		assert.Contains(t, msg, tt.want)
		assert.Equal(t, tt.ok, ok)
	}
}
