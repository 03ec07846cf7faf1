package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"guild-bot/internal/progression"
	"guild-bot/internal/service"
	"guild-bot/internal/workout"
)

// CallbackTimerConfirm prefixes timer confirmation button data.
const CallbackTimerConfirm = "timer_confirm"

// HandleLift logs a lifting session from its summary.
func (h *GuildHandler) HandleLift(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 || len(args) > 3 {
		return c.Reply("Usage: /lift <minutes> [volume kg] [exercises]")
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil || minutes < 1 {
		return c.Reply("❌ Minutes must be a positive number")
	}
	summary := progression.WorkoutSummary{DurationMinutes: minutes, Category: "strength"}
	if len(args) > 1 {
		volume, err := strconv.ParseFloat(args[1], 64)
		if err != nil || volume < 0 {
			return c.Reply("❌ Volume must be a number of kilograms")
		}
		summary.TotalVolumeKg = volume
	}
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 0 {
			return c.Reply("❌ Exercises must be a whole number")
		}
		summary.ExerciseCount = n
	}

	return h.submit(c, sender, service.WorkoutSubmission{Summary: summary})
}

// HandleCardio logs a single cardio interval.
func (h *GuildHandler) HandleCardio(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 || len(args) > 2 {
		return c.Reply("Usage: /cardio <minutes> [rpe 1-10]")
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil || minutes < 1 {
		return c.Reply("❌ Minutes must be a positive number")
	}
	activity := progression.ActivityInput{
		Category:        "cardio",
		DurationSeconds: float64(minutes * 60),
		Completed:       true,
	}
	if len(args) == 2 {
		rpe, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return c.Reply("❌ RPE must be a number from 1 to 10")
		}
		activity.RPE = rpe
	}

	sub := service.WorkoutSubmission{
		Activities: []progression.ActivityInput{activity},
		Summary:    progression.WorkoutSummary{DurationMinutes: minutes, Category: "cardio"},
	}
	return h.submit(c, sender, sub)
}

func (h *GuildHandler) submit(c tele.Context, sender *tele.User, sub service.WorkoutSubmission) error {
	ctx := context.Background()
	if err := h.ensure(ctx, sender); err != nil {
		return h.replyErr(c, "workout", err)
	}
	res, err := h.progress.SubmitWorkout(ctx, sender.ID, sub)
	if err != nil {
		return h.replyErr(c, "workout", err)
	}
	return c.Reply(formatWorkoutResult(res))
}

// HandleTrain starts the workout timer.
func (h *GuildHandler) HandleTrain(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 || len(args) > 2 {
		return c.Reply("Usage: /train <planned minutes> [category]")
	}
	estimate, err := strconv.Atoi(args[0])
	if err != nil {
		return c.Reply("❌ Minutes must be a positive number")
	}
	category := "strength"
	if len(args) == 2 {
		category = strings.ToLower(args[1])
	}

	if err := h.ensure(ctx, sender); err != nil {
		return h.replyErr(c, "train", err)
	}
	if _, err := h.timers.Start(ctx, sender.ID, estimate, category); err != nil {
		return h.replyErr(c, "train", err)
	}
	return c.Reply(fmt.Sprintf("⏱ Timer started: %d min of %s planned. Send /done when finished.", estimate, category))
}

// HandleDone stops the timer. Durations far from the plan ask which one counts.
func (h *GuildHandler) HandleDone(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	snap, err := h.timers.Stop(ctx, sender.ID)
	if err != nil {
		return h.replyErr(c, "done", err)
	}
	if snap.State == workout.StateCompleted {
		return h.finish(c, sender.ID)
	}

	actual := max(int(snap.StoppedAt.Sub(snap.StartedAt).Minutes()+0.5), 1)
	markup := &tele.ReplyMarkup{}
	btnActual := markup.Data(fmt.Sprintf("⏱ Actual (%d min)", actual), CallbackTimerConfirm, string(workout.ChoiceActual))
	btnEstimate := markup.Data(fmt.Sprintf("📋 Planned (%d min)", snap.EstimatedMinutes), CallbackTimerConfirm, string(workout.ChoiceEstimate))
	markup.Inline(markup.Row(btnActual, btnEstimate))

	return c.Reply(fmt.Sprintf(
		"🤔 You trained about %d min but planned %d. Which should count?\nOr send /manual <minutes>.",
		actual, snap.EstimatedMinutes,
	), markup)
}

// HandleManual resolves a pending timer with a typed duration.
func (h *GuildHandler) HandleManual(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Reply("Usage: /manual <minutes>")
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		return c.Reply("❌ Minutes must be a whole number")
	}
	if _, err := h.timers.Confirm(ctx, sender.ID, workout.ChoiceManual, minutes); err != nil {
		return h.replyErr(c, "manual", err)
	}
	return h.finish(c, sender.ID)
}

// HandleCancel throws the timer away without credit.
func (h *GuildHandler) HandleCancel(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if err := h.timers.Cancel(context.Background(), sender.ID); err != nil {
		return h.replyErr(c, "cancel", err)
	}
	return c.Reply("🗑 Workout timer discarded")
}

// HandleTimerCallback resolves a pending timer from a confirmation button.
// data is the button payload without the prefix.
func (h *GuildHandler) HandleTimerCallback(c tele.Context, data string) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	choice := workout.Choice(data)
	if _, err := h.timers.Confirm(context.Background(), sender.ID, choice, 0); err != nil {
		msg, _ := userMessage(err)
		return c.Respond(&tele.CallbackResponse{Text: msg})
	}
	if err := h.finish(c, sender.ID); err != nil {
		return err
	}
	return c.Respond(&tele.CallbackResponse{Text: "✅ Workout recorded"})
}

// finish credits a completed timer. The timer is removed only once the
// workout is stored, so a failed write can be retried with /done.
func (h *GuildHandler) finish(c tele.Context, userID int64) error {
	var out *service.WorkoutResult
	_, err := h.timers.Complete(context.Background(), userID, func(ctx context.Context, res workout.Result) error {
		var err error
		out, err = h.progress.CompleteTimedWorkout(ctx, userID, service.TimedWorkout{
			EstimatedMinutes: res.EstimatedMinutes,
			FinalMinutes:     res.FinalMinutes,
			Category:         res.Category,
			StartedAt:        res.StartedAt,
		})
		return err
	})
	if err != nil {
		return h.replyErr(c, "finish", err)
	}
	return c.Reply(formatWorkoutResult(out))
}
