package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"guild-bot/internal/metrics"
	"guild-bot/internal/model"
	"guild-bot/internal/pkg/lock"
	"guild-bot/internal/progression"
	"guild-bot/internal/repository"
)

// Common errors for progression operations.
var (
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInvalidWorkout  = errors.New("invalid workout")
)

const recentWorkoutLimit = 5

// WorkoutSubmission is a finished workout as sent by a client. When
// Activities is non-empty the per-set allocation is used, otherwise Summary.
type WorkoutSubmission struct {
	Activities []progression.ActivityInput `json:"activities,omitempty"`
	Summary    progression.WorkoutSummary  `json:"summary"`
}

// TimedWorkout is a workout finished through the workout timer. StartedAt
// identifies the timer run; crediting the same run twice is a no-op.
type TimedWorkout struct {
	EstimatedMinutes int       `json:"estimated_minutes"`
	FinalMinutes     int       `json:"final_minutes"`
	Category         string    `json:"category"`
	StartedAt        time.Time `json:"started_at"`
}

// timedSessionID derives the session ID of one timer run.
func timedSessionID(userID int64, startedAt time.Time) string {
	name := fmt.Sprintf("guild:timer:%d:%d", userID, startedAt.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// WorkoutResult describes what a workout changed.
type WorkoutResult struct {
	User        *model.User               `json:"user"`
	Session     *model.WorkoutSession     `json:"session,omitempty"`
	Source      string                    `json:"source"`
	BaseXP      int64                     `json:"base_xp"`
	Bonus       progression.StreakBonus   `json:"bonus"`
	StatXP      progression.SessionXP     `json:"stat_xp"`
	StatGains   progression.StatGains     `json:"stat_gains"`
	LevelBefore int                       `json:"level_before"`
	LevelUp     bool                      `json:"level_up"`
	Progress    progression.LevelProgress `json:"progress"`
	// AlreadyRecorded is set when the workout had been credited before.
	AlreadyRecorded bool `json:"already_recorded,omitempty"`
}

// Profile is a user's character sheet.
type Profile struct {
	User     *model.User                 `json:"user"`
	Progress progression.LevelProgress   `json:"progress"`
	Streak   progression.StreakBonusInfo `json:"streak"`
	Recent   []*model.WorkoutSession     `json:"recent"`
}

// ProgressService applies workouts to characters.
type ProgressService struct {
	users            UserStore
	workouts         WorkoutStore
	calendar         *Calendar
	timezones        *TimezoneResolver
	userLock         *lock.UserLock
	metrics          *metrics.Manager
	timedXPPerMinute int64
}

// NewProgressService creates a new ProgressService instance.
func NewProgressService(
	users UserStore,
	workouts WorkoutStore,
	calendar *Calendar,
	timezones *TimezoneResolver,
	userLock *lock.UserLock,
	m *metrics.Manager,
	timedXPPerMinute int64,
) *ProgressService {
	return &ProgressService{
		users:            users,
		workouts:         workouts,
		calendar:         calendar,
		timezones:        timezones,
		userLock:         userLock,
		metrics:          m,
		timedXPPerMinute: timedXPPerMinute,
	}
}

// EnsureUser ensures a user exists, creating one if necessary.
// Returns the user and whether it was newly created.
func (s *ProgressService) EnsureUser(ctx context.Context, userID int64, username string) (*model.User, bool, error) {
	user, created, err := s.users.GetOrCreate(ctx, userID, username)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if !created && user.Username != username && username != "" {
		if err := s.users.UpdateUsername(ctx, userID, username); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to update username")
		} else {
			user.Username = username
		}
	}

	return user, created, nil
}

// GetProfile returns the user's character sheet with recent workouts.
func (s *ProgressService) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	recent, err := s.workouts.GetRecent(ctx, userID, recentWorkoutLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent workouts: %w", err)
	}

	return &Profile{
		User:     user,
		Progress: progression.Progress(user.Experience),
		Streak:   progression.ApplyStreakBonus(0, user.CurrentStreak).Info,
		Recent:   recent,
	}, nil
}

// SetTimezone stores a validated IANA timezone for the user.
func (s *ProgressService) SetTimezone(ctx context.Context, userID int64, tz string) error {
	if tz == "" {
		return ErrInvalidTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTimezone, tz)
	}

	if err := s.users.SetTimezone(ctx, userID, tz); err != nil {
		return err
	}
	if s.timezones != nil {
		s.timezones.Set(userID, tz)
	}
	return nil
}

// Leaderboard returns the top users by experience.
func (s *ProgressService) Leaderboard(ctx context.Context, limit int) ([]*model.User, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.users.GetTopUsers(ctx, limit)
}

// SubmitWorkout scores a workout and applies it to the user in one
// transaction together with its session record. The streak bonus uses the
// streak as it was before this workout.
func (s *ProgressService) SubmitWorkout(ctx context.Context, userID int64, sub WorkoutSubmission) (*WorkoutResult, error) {
	var (
		source string
		base   int64
		statXP progression.SessionXP
		direct progression.StatGains
	)

	if len(sub.Activities) > 0 {
		allocated, err := progression.AllocateSessionXP(sub.Activities)
		if err != nil {
			return nil, err
		}
		source = model.SourceDetailed
		base = allocated.XPTotal
		statXP = allocated
	} else {
		if sub.Summary.DurationMinutes < 0 || sub.Summary.ExerciseCount < 0 || sub.Summary.TotalVolumeKg < 0 {
			return nil, fmt.Errorf("%w: negative summary values", ErrInvalidWorkout)
		}
		source = model.SourceLegacy
		base = progression.CalculateXPReward(sub.Summary)
		direct = progression.CalculateStatGains(sub.Summary)
	}

	session := &model.WorkoutSession{
		UserID:          userID,
		Source:          source,
		DurationMinutes: sub.Summary.DurationMinutes,
		Completed:       true,
	}
	return s.apply(ctx, userID, source, base, statXP, direct, session)
}

// CompleteTimedWorkout applies a workout finished through the timer. XP is
// earned per estimated minute; stats follow the final duration.
func (s *ProgressService) CompleteTimedWorkout(ctx context.Context, userID int64, tw TimedWorkout) (*WorkoutResult, error) {
	if tw.EstimatedMinutes < 1 || tw.FinalMinutes < 1 {
		return nil, fmt.Errorf("%w: timed workout needs positive minutes", ErrInvalidWorkout)
	}

	base := s.timedXPPerMinute * int64(tw.EstimatedMinutes)
	direct := progression.CalculateStatGains(progression.WorkoutSummary{
		DurationMinutes: tw.FinalMinutes,
		Category:        tw.Category,
	})

	session := &model.WorkoutSession{
		UserID:           userID,
		Source:           model.SourceTimed,
		DurationMinutes:  tw.FinalMinutes,
		EstimatedMinutes: tw.EstimatedMinutes,
		Completed:        true,
	}
	if !tw.StartedAt.IsZero() {
		session.ID = timedSessionID(userID, tw.StartedAt)
	}
	return s.apply(ctx, userID, model.SourceTimed, base, progression.SessionXP{}, direct, session)
}

func (s *ProgressService) apply(
	ctx context.Context,
	userID int64,
	source string,
	base int64,
	statXP progression.SessionXP,
	direct progression.StatGains,
	session *model.WorkoutSession,
) (*WorkoutResult, error) {
	result := &WorkoutResult{Source: source, BaseXP: base, StatXP: statXP}

	if base == 0 && statXP.IsZero() && direct.IsZero() {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		result.User = user
		result.LevelBefore = user.Level
		result.Progress = progression.Progress(user.Experience)
		return result, nil
	}

	err := s.userLock.WithLock(ctx, userID, func() error {
		user, err := s.users.UpdateWithWorkout(ctx, userID, session, func(u *model.User) error {
			today := s.calendar.Today(u.Timezone)
			result.LevelBefore = u.Level
			result.Bonus = progression.ApplyStreakBonus(base, u.CurrentStreak)
			gained, err := ApplyGains(u, Gains{
				XP:     result.Bonus.FinalXP,
				StatXP: statXP,
				Stats:  direct,
			}, today)
			if err != nil {
				return err
			}
			result.StatGains = gained

			session.Date = today
			session.XPTotal = result.Bonus.FinalXP
			session.XPStr = statXP.XPStr
			session.XPSta = statXP.XPSta
			session.XPAgi = statXP.XPAgi
			session.BonusXP = result.Bonus.BonusXP
			return nil
		})
		if err != nil {
			return err
		}
		result.User = user
		return nil
	})
	if errors.Is(err, repository.ErrDuplicateWorkout) {
		return s.alreadyRecorded(ctx, userID, source, base, statXP)
	}
	if err != nil {
		return nil, err
	}

	result.Session = session
	result.LevelUp = result.User.Level > result.LevelBefore
	result.Progress = progression.Progress(result.User.Experience)
	s.metrics.XPAwarded(source, result.Bonus.FinalXP)

	log.Info().
		Int64("user_id", userID).
		Str("source", source).
		Int64("xp", result.Bonus.FinalXP).
		Int64("bonus_xp", result.Bonus.BonusXP).
		Int("level", result.User.Level).
		Msg("Workout applied")

	return result, nil
}

func (s *ProgressService) alreadyRecorded(ctx context.Context, userID int64, source string, base int64, statXP progression.SessionXP) (*WorkoutResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	log.Info().Int64("user_id", userID).Str("source", source).Msg("Workout already recorded")
	return &WorkoutResult{
		User:            user,
		Source:          source,
		BaseXP:          base,
		StatXP:          statXP,
		LevelBefore:     user.Level,
		Progress:        progression.Progress(user.Experience),
		AlreadyRecorded: true,
	}, nil
}
