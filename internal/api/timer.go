package api

import (
	"context"
	"net/http"

	"guild-bot/internal/service"
	"guild-bot/internal/workout"
)

type timerView struct {
	workout.Snapshot
	ElapsedSeconds    float64 `json:"elapsed_seconds"`
	NeedsConfirmation bool    `json:"needs_confirmation"`
	XPReward          int64   `json:"xp_reward"`
}

func viewOf(t *workout.Timer) timerView {
	snap := t.Snapshot()
	return timerView{
		Snapshot:          snap,
		ElapsedSeconds:    t.Elapsed().Seconds(),
		NeedsConfirmation: snap.State == workout.StateAwaitingConfirmation,
		XPReward:          t.XPReward(),
	}
}

func (h *Handler) handleTimerGet(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	t, err := h.Timers.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(t))
}

func (h *Handler) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req struct {
		EstimatedMinutes int    `json:"estimated_minutes"`
		Category         string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}
	t, err := h.Timers.Start(r.Context(), id, req.EstimatedMinutes, req.Category)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(t))
}

func (h *Handler) handleTimerStop(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if _, err := h.Timers.Stop(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.handleTimerGet(w, r)
}

func (h *Handler) handleTimerConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req struct {
		Choice        workout.Choice `json:"choice"`
		ManualMinutes int            `json:"manual_minutes"`
	}
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.Timers.Confirm(r.Context(), id, req.Choice, req.ManualMinutes); err != nil {
		h.fail(w, r, err)
		return
	}
	h.handleTimerGet(w, r)
}

// handleTimerFinish credits a completed timer. The timer is only removed once
// the workout has been recorded, so a failed write can be retried.
func (h *Handler) handleTimerFinish(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var out *service.WorkoutResult
	_, err = h.Timers.Complete(r.Context(), id, func(ctx context.Context, res workout.Result) error {
		var err error
		out, err = h.Progress.CompleteTimedWorkout(ctx, id, timedWorkout(res))
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func timedWorkout(res workout.Result) service.TimedWorkout {
	return service.TimedWorkout{
		EstimatedMinutes: res.EstimatedMinutes,
		FinalMinutes:     res.FinalMinutes,
		Category:         res.Category,
		StartedAt:        res.StartedAt,
	}
}

func (h *Handler) handleTimerCancel(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.Timers.Cancel(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
