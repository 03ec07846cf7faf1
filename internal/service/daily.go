package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"guild-bot/internal/metrics"
	"guild-bot/internal/model"
	"guild-bot/internal/pkg/lock"
	"guild-bot/internal/progression"
	"guild-bot/internal/repository"
)

// ErrInvalidQuest is returned for an unknown daily quest name.
var ErrInvalidQuest = errors.New("invalid quest")

// DailyConfig tunes the daily quest rules.
type DailyConfig struct {
	QuestBonusXP       int64
	MaxStreakFreezes   int
	StreakQuestMinimum int
}

// QuestResult describes what completing a quest changed.
type QuestResult struct {
	Progress       *model.DailyProgress `json:"progress"`
	User           *model.User          `json:"user"`
	StreakCredited bool                 `json:"streak_credited"`
	BonusXP        int64                `json:"bonus_xp"`
	FreezeAwarded  bool                 `json:"freeze_awarded"`
}

// DailyService runs the daily quest reset, streak upkeep and automatic
// streak freezes.
type DailyService struct {
	users    UserStore
	daily    DailyProgressStore
	workouts WorkoutStore
	calendar *Calendar
	userLock *lock.UserLock
	metrics  *metrics.Manager
	cfg      DailyConfig
}

// NewDailyService creates a new DailyService instance.
func NewDailyService(
	users UserStore,
	daily DailyProgressStore,
	workouts WorkoutStore,
	calendar *Calendar,
	userLock *lock.UserLock,
	m *metrics.Manager,
	cfg DailyConfig,
) *DailyService {
	if cfg.StreakQuestMinimum <= 0 {
		cfg.StreakQuestMinimum = 2
	}
	return &DailyService{
		users:    users,
		daily:    daily,
		workouts: workouts,
		calendar: calendar,
		userLock: userLock,
		metrics:  m,
		cfg:      cfg,
	}
}

// CurrentDateForUser returns today's date in the user's timezone. An empty
// or invalid timezone degrades to server time.
func (s *DailyService) CurrentDateForUser(tz string) string {
	return s.calendar.Today(tz)
}

// ShouldResetForUser reports whether the user has an earlier quest sheet
// and no sheet for today. Users with no sheets never need a reset.
func (s *DailyService) ShouldResetForUser(ctx context.Context, userID int64, tz string) (bool, error) {
	latest, err := s.daily.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrDailyProgressNotFound) {
			return false, nil
		}
		return false, err
	}
	return latest.Date != s.CurrentDateForUser(tz), nil
}

// CheckAndResetDailyQuests starts a new quest sheet for today when one is
// due. The freeze check for yesterday runs before today's sheet exists.
// Repeated or racing calls insert at most one sheet; only the caller that
// inserted it gets true.
func (s *DailyService) CheckAndResetDailyQuests(ctx context.Context, userID int64, tz string) (bool, error) {
	today := s.CurrentDateForUser(tz)

	_, err := s.daily.Get(ctx, userID, today)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrDailyProgressNotFound) {
		return false, fmt.Errorf("failed to check today's progress: %w", err)
	}

	due, err := s.ShouldResetForUser(ctx, userID, tz)
	if err != nil || !due {
		return false, err
	}

	var inserted bool
	err = s.userLock.WithLock(ctx, userID, func() error {
		frozen, err := s.applyAutoStreakFreeze(ctx, userID, tz)
		if err != nil {
			return fmt.Errorf("streak freeze check: %w", err)
		}

		if !frozen {
			if err := s.breakStaleStreak(ctx, userID, tz); err != nil {
				return err
			}
		}

		if _, err := s.daily.Insert(ctx, userID, today); err != nil {
			if errors.Is(err, repository.ErrDuplicateDailyProgress) {
				return nil
			}
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if inserted {
		s.metrics.DailyReset()
		log.Debug().Int64("user_id", userID).Str("date", today).Msg("Daily quests reset")
	}
	return inserted, nil
}

// breakStaleStreak zeroes a streak that was last credited before yesterday.
func (s *DailyService) breakStaleStreak(ctx context.Context, userID int64, tz string) error {
	broken, err := s.users.BreakStreak(ctx, userID, s.calendar.Yesterday(tz))
	if err != nil {
		return fmt.Errorf("failed to break streak: %w", err)
	}
	if broken {
		s.metrics.StreakBroken()
		log.Info().Int64("user_id", userID).Msg("Streak broken after missed day")
	}
	return nil
}

// CheckAndApplyAutoStreakFreeze spends one streak freeze to cover yesterday
// when the user has a streak, has a freeze, and missed yesterday's
// requirement (two quests or one completed workout).
func (s *DailyService) CheckAndApplyAutoStreakFreeze(ctx context.Context, userID int64, tz string) (bool, error) {
	var applied bool
	err := s.userLock.WithLock(ctx, userID, func() error {
		var err error
		applied, err = s.applyAutoStreakFreeze(ctx, userID, tz)
		return err
	})
	return applied, err
}

// applyAutoStreakFreeze expects the caller to hold the user's lock.
func (s *DailyService) applyAutoStreakFreeze(ctx context.Context, userID int64, tz string) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.CurrentStreak <= 0 || user.StreakFreezeCount <= 0 {
		return false, nil
	}

	yesterday := s.calendar.Yesterday(tz)
	met, err := s.metRequirement(ctx, userID, yesterday)
	if err != nil || met {
		return false, err
	}

	applied, err := s.users.ApplyStreakFreeze(ctx, userID, yesterday)
	if err != nil {
		return false, err
	}
	if applied {
		s.metrics.StreakFreezeConsumed()
		log.Info().
			Int64("user_id", userID).
			Str("date", yesterday).
			Int("freezes_left", user.StreakFreezeCount-1).
			Msg("Streak freeze applied")
	}
	return applied, nil
}

func (s *DailyService) metRequirement(ctx context.Context, userID int64, date string) (bool, error) {
	p, err := s.daily.Get(ctx, userID, date)
	switch {
	case err == nil:
		if p.CompletedCount() >= s.cfg.StreakQuestMinimum {
			return true, nil
		}
	case !errors.Is(err, repository.ErrDailyProgressNotFound):
		return false, err
	}

	sessions, err := s.workouts.GetByUserAndDate(ctx, userID, date)
	if err != nil {
		return false, err
	}
	for _, ws := range sessions {
		if ws.Completed {
			return true, nil
		}
	}
	return false, nil
}

// TodayProgress returns today's quest sheet, running the reset first and
// creating the sheet for users who have none yet.
func (s *DailyService) TodayProgress(ctx context.Context, userID int64, tz string) (*model.DailyProgress, error) {
	if _, err := s.CheckAndResetDailyQuests(ctx, userID, tz); err != nil {
		return nil, err
	}

	today := s.CurrentDateForUser(tz)
	p, err := s.daily.Get(ctx, userID, today)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrDailyProgressNotFound) {
		return nil, err
	}

	p, err = s.daily.Insert(ctx, userID, today)
	if errors.Is(err, repository.ErrDuplicateDailyProgress) {
		return s.daily.Get(ctx, userID, today)
	}
	return p, err
}

// CompleteQuest marks a quest done for today. Reaching the streak quest
// minimum credits today's streak. Finishing all four awards the bonus XP
// and one streak freeze, each at most once per day.
func (s *DailyService) CompleteQuest(ctx context.Context, userID int64, tz string, quest model.Quest) (*QuestResult, error) {
	if _, ok := model.ParseQuest(string(quest)); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuest, quest)
	}

	if _, err := s.TodayProgress(ctx, userID, tz); err != nil {
		return nil, err
	}

	today := s.CurrentDateForUser(tz)
	result := &QuestResult{}

	err := s.userLock.WithLock(ctx, userID, func() error {
		p, err := s.daily.SetQuest(ctx, userID, today, quest)
		if err != nil {
			return err
		}
		result.Progress = p

		creditDue := p.CompletedCount() >= s.cfg.StreakQuestMinimum
		allDone := p.CompletedCount() == len(model.AllQuests())
		if !creditDue && !allDone {
			result.User, err = s.users.GetByID(ctx, userID)
			return err
		}

		credit := func(u *model.User, won model.Awards) error {
			if creditDue {
				result.StreakCredited = creditStreak(u, today)
			}
			if won.XP && s.cfg.QuestBonusXP > 0 {
				u.Experience += s.cfg.QuestBonusXP
				u.Level = progression.LevelFromXP(u.Experience)
				result.BonusXP = s.cfg.QuestBonusXP
			}
			if won.StreakFreeze && u.StreakFreezeCount < s.cfg.MaxStreakFreezes {
				u.StreakFreezeCount++
				result.FreezeAwarded = true
			}
			return nil
		}

		var user *model.User
		if allDone {
			// The award markers are claimed in the same transaction as the credit.
			user, err = s.users.UpdateWithAwards(ctx, userID, today, credit)
		} else {
			user, err = s.users.Update(ctx, userID, func(u *model.User) error {
				return credit(u, model.Awards{})
			})
		}
		if err != nil {
			return err
		}
		result.User = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.BonusXP > 0 {
		s.metrics.QuestBonus(result.BonusXP)
		log.Info().Int64("user_id", userID).Int64("bonus_xp", result.BonusXP).Msg("All daily quests complete")
	}
	return result, nil
}
