package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"guild-bot/internal/model"
)

const workoutColumns = `id, user_id, date, source, duration_minutes, estimated_minutes,
	xp_total, xp_str, xp_sta, xp_agi, bonus_xp, completed, created_at`

// ErrDuplicateWorkout is returned when a session with the same ID exists.
var ErrDuplicateWorkout = errors.New("workout session already recorded")

// WorkoutRepository handles workout session history.
type WorkoutRepository struct {
	pool *pgxpool.Pool
}

// NewWorkoutRepository creates a new WorkoutRepository instance.
func NewWorkoutRepository(pool *pgxpool.Pool) *WorkoutRepository {
	return &WorkoutRepository{pool: pool}
}

// Create records a workout session. An empty ID is filled with a new UUID.
func (r *WorkoutRepository) Create(ctx context.Context, s *model.WorkoutSession) error {
	return insertWorkoutSession(ctx, r.pool, s)
}

func insertWorkoutSession(ctx context.Context, q querier, s *model.WorkoutSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	query := `
		INSERT INTO workout_sessions (id, user_id, date, source, duration_minutes,
			estimated_minutes, xp_total, xp_str, xp_sta, xp_agi, bonus_xp, completed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING created_at`

	err := q.QueryRow(ctx, query,
		s.ID, s.UserID, s.Date, s.Source, s.DurationMinutes,
		s.EstimatedMinutes, s.XPTotal, s.XPStr, s.XPSta, s.XPAgi, s.BonusXP, s.Completed,
	).Scan(&s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateWorkout
		}
		return fmt.Errorf("failed to create workout session: %w", err)
	}
	return nil
}

// GetByUserAndDate returns the user's sessions on a local calendar date.
func (r *WorkoutRepository) GetByUserAndDate(ctx context.Context, userID int64, date string) ([]*model.WorkoutSession, error) {
	query := `SELECT ` + workoutColumns + ` FROM workout_sessions
		WHERE user_id = $1 AND date = $2 ORDER BY created_at`
	return r.list(ctx, query, userID, date)
}

// GetRecent returns the user's most recent sessions, newest first.
func (r *WorkoutRepository) GetRecent(ctx context.Context, userID int64, limit int) ([]*model.WorkoutSession, error) {
	query := `SELECT ` + workoutColumns + ` FROM workout_sessions
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, userID, limit)
}

func (r *WorkoutRepository) list(ctx context.Context, query string, args ...any) ([]*model.WorkoutSession, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workout sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.WorkoutSession
	for rows.Next() {
		var s model.WorkoutSession
		var id uuid.UUID
		err := rows.Scan(
			&id,
			&s.UserID,
			&s.Date,
			&s.Source,
			&s.DurationMinutes,
			&s.EstimatedMinutes,
			&s.XPTotal,
			&s.XPStr,
			&s.XPSta,
			&s.XPAgi,
			&s.BonusXP,
			&s.Completed,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workout session: %w", err)
		}
		s.ID = id.String()
		sessions = append(sessions, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workout sessions: %w", err)
	}

	return sessions, nil
}
