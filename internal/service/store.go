// Package service provides business logic implementations.
package service

import (
	"context"

	"guild-bot/internal/model"
)

// UserStore is the user persistence the services need.
type UserStore interface {
	GetByID(ctx context.Context, userID int64) (*model.User, error)
	GetOrCreate(ctx context.Context, userID int64, username string) (*model.User, bool, error)
	UpdateUsername(ctx context.Context, userID int64, username string) error
	SetTimezone(ctx context.Context, userID int64, timezone string) error
	Update(ctx context.Context, userID int64, fn func(u *model.User) error) (*model.User, error)
	UpdateWithWorkout(ctx context.Context, userID int64, session *model.WorkoutSession, fn func(u *model.User) error) (*model.User, error)
	UpdateWithAwards(ctx context.Context, userID int64, date string, fn func(u *model.User, won model.Awards) error) (*model.User, error)
	ApplyStreakFreeze(ctx context.Context, userID int64, date string) (bool, error)
	BreakStreak(ctx context.Context, userID int64, since string) (bool, error)
	ListRefs(ctx context.Context) ([]model.UserRef, error)
	GetTopUsers(ctx context.Context, limit int) ([]*model.User, error)
}

// DailyProgressStore is the daily quest sheet persistence.
type DailyProgressStore interface {
	Get(ctx context.Context, userID int64, date string) (*model.DailyProgress, error)
	Latest(ctx context.Context, userID int64) (*model.DailyProgress, error)
	Insert(ctx context.Context, userID int64, date string) (*model.DailyProgress, error)
	SetQuest(ctx context.Context, userID int64, date string, q model.Quest) (*model.DailyProgress, error)
}

// WorkoutStore is the workout history persistence.
type WorkoutStore interface {
	GetByUserAndDate(ctx context.Context, userID int64, date string) ([]*model.WorkoutSession, error)
	GetRecent(ctx context.Context, userID int64, limit int) ([]*model.WorkoutSession, error)
}
