// Package api exposes character progression over a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"guild-bot/internal/metrics"
	"guild-bot/internal/model"
	"guild-bot/internal/progression"
	"guild-bot/internal/regen"
	"guild-bot/internal/repository"
	"guild-bot/internal/service"
	"guild-bot/internal/workout"
)

const maxBodyBytes = 1 << 20

// Progress is the subset of service.ProgressService the API calls.
type Progress interface {
	EnsureUser(ctx context.Context, userID int64, username string) (*model.User, bool, error)
	GetProfile(ctx context.Context, userID int64) (*service.Profile, error)
	SetTimezone(ctx context.Context, userID int64, tz string) error
	Leaderboard(ctx context.Context, limit int) ([]*model.User, error)
	SubmitWorkout(ctx context.Context, userID int64, sub service.WorkoutSubmission) (*service.WorkoutResult, error)
	CompleteTimedWorkout(ctx context.Context, userID int64, tw service.TimedWorkout) (*service.WorkoutResult, error)
}

// Daily is the subset of service.DailyService the API calls.
type Daily interface {
	CheckAndResetDailyQuests(ctx context.Context, userID int64, tz string) (bool, error)
	TodayProgress(ctx context.Context, userID int64, tz string) (*model.DailyProgress, error)
	CompleteQuest(ctx context.Context, userID int64, tz string, quest model.Quest) (*service.QuestResult, error)
}

// Timezones resolves a user's stored timezone.
type Timezones interface {
	Resolve(ctx context.Context, userID int64) (string, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker func(ctx context.Context) error

// Deps are the services behind the API.
type Deps struct {
	Progress  Progress
	Daily     Daily
	Timezones Timezones
	Regen     *regen.Registry
	Timers    *workout.Tracker
	Metrics   *metrics.Manager
	Gatherer  prometheus.Gatherer
	Health    map[string]HealthChecker
}

// Handler serves the JSON API.
type Handler struct {
	Deps
}

// NewRouter wires every route and middleware.
func NewRouter(d Deps) *mux.Router {
	h := &Handler{Deps: d}

	r := mux.NewRouter()
	r.Use(PanicRecovery(d.Metrics))
	r.Use(LogRequest())
	r.Use(RequestMetrics(d.Metrics))

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/leaderboard", h.handleLeaderboard).Methods(http.MethodGet)

	u := api.PathPrefix("/users/{id:[0-9]+}").Subrouter()
	u.HandleFunc("", h.handleEnsureUser).Methods(http.MethodPost)
	u.HandleFunc("", h.handleProfile).Methods(http.MethodGet)
	u.HandleFunc("/timezone", h.handleSetTimezone).Methods(http.MethodPut)
	u.HandleFunc("/workouts", h.handleSubmitWorkout).Methods(http.MethodPost)
	u.HandleFunc("/daily", h.handleDaily).Methods(http.MethodGet)
	u.HandleFunc("/daily-reset", h.handleDailyReset).Methods(http.MethodPost)
	u.HandleFunc("/quests/{quest}", h.handleCompleteQuest).Methods(http.MethodPost)

	if d.Timers != nil {
		u.HandleFunc("/timer", h.handleTimerGet).Methods(http.MethodGet)
		u.HandleFunc("/timer", h.handleTimerCancel).Methods(http.MethodDelete)
		u.HandleFunc("/timer/start", h.handleTimerStart).Methods(http.MethodPost)
		u.HandleFunc("/timer/stop", h.handleTimerStop).Methods(http.MethodPost)
		u.HandleFunc("/timer/confirm", h.handleTimerConfirm).Methods(http.MethodPost)
		u.HandleFunc("/timer/finish", h.handleTimerFinish).Methods(http.MethodPost)
	}

	if d.Regen != nil {
		u.HandleFunc("/hp", h.handleHP).Methods(http.MethodGet)
		u.HandleFunc("/hp", h.handleSetHP).Methods(http.MethodPut)
		u.HandleFunc("/hp/route", h.handleNavigate).Methods(http.MethodPut)
		u.HandleFunc("/hp/visibility", h.handleVisibility).Methods(http.MethodPut)
	}

	return r
}

func userID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %s", err))
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, workout.ErrNoTimer):
		return http.StatusNotFound
	case errors.Is(err, workout.ErrTimerActive),
		errors.Is(err, workout.ErrNotComplete),
		errors.Is(err, workout.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, progression.ErrInvalidActivity),
		errors.Is(err, service.ErrInvalidWorkout),
		errors.Is(err, service.ErrInvalidTimezone),
		errors.Is(err, service.ErrInvalidQuest),
		errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, workout.ErrInvalidEstimate),
		errors.Is(err, workout.ErrInvalidChoice):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.Health))
	for name, check := range h.Health {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, checks)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	users, err := h.Progress.Leaderboard(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleEnsureUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req struct {
		Username string `json:"username"`
	}
	if !decode(w, r, &req) {
		return
	}

	user, created, err := h.Progress.EnsureUser(r.Context(), id, req.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, user)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	profile, err := h.Progress.GetProfile(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleSetTimezone(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req struct {
		Timezone string `json:"timezone"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.Progress.SetTimezone(r.Context(), id, req.Timezone); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"timezone": req.Timezone})
}

func (h *Handler) handleSubmitWorkout(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var sub service.WorkoutSubmission
	if !decode(w, r, &sub) {
		return
	}
	res, err := h.Progress.SubmitWorkout(r.Context(), id, sub)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) timezone(r *http.Request, id int64) (string, error) {
	if h.Timezones == nil {
		return "", nil
	}
	return h.Timezones.Resolve(r.Context(), id)
}

func (h *Handler) handleDaily(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	tz, err := h.timezone(r, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	progress, err := h.Daily.TodayProgress(r.Context(), id, tz)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) handleDailyReset(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	tz, err := h.timezone(r, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reset, err := h.Daily.CheckAndResetDailyQuests(r.Context(), id, tz)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": reset})
}

func (h *Handler) handleCompleteQuest(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	quest, ok := model.ParseQuest(mux.Vars(r)["quest"])
	if !ok {
		writeError(w, http.StatusBadRequest, service.ErrInvalidQuest.Error())
		return
	}
	tz, err := h.timezone(r, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Daily.CompleteQuest(r.Context(), id, tz, quest)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
