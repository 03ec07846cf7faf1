// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"guild-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrDailyProgressNotFound  = errors.New("daily progress not found")
	ErrDuplicateDailyProgress = errors.New("daily progress already exists")
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, username, level, experience, strength, stamina, agility,
	strength_xp, stamina_xp, agility_xp, current_streak, longest_streak,
	last_activity_date, last_streak_date, streak_freeze_count, timezone,
	created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Level,
		&u.Experience,
		&u.Strength,
		&u.Stamina,
		&u.Agility,
		&u.StrengthXP,
		&u.StaminaXP,
		&u.AgilityXP,
		&u.CurrentStreak,
		&u.LongestStreak,
		&u.LastActivityDate,
		&u.LastStreakDate,
		&u.StreakFreezeCount,
		&u.Timezone,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserRepository handles user and character progression persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create creates a level 1 character with all stats at 1.
func (r *UserRepository) Create(ctx context.Context, userID int64, username string) (*model.User, error) {
	query := `
		INSERT INTO users (id, username, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID, username))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetOrCreate retrieves a user by ID, creating one if it doesn't exist.
func (r *UserRepository) GetOrCreate(ctx context.Context, userID int64, username string) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, userID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, userID, username)
	if err != nil {
		// Handle race condition: another request might have created the user
		user, err = r.GetByID(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// UpdateUsername updates a user's username.
func (r *UserRepository) UpdateUsername(ctx context.Context, userID int64, username string) error {
	const query = `UPDATE users SET username = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, userID, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetTimezone stores the user's IANA timezone name.
func (r *UserRepository) SetTimezone(ctx context.Context, userID int64, timezone string) error {
	const query = `UPDATE users SET timezone = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, userID, timezone)
	if err != nil {
		return fmt.Errorf("failed to set timezone: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Update runs fn against the locked user row and writes the result back in
// the same transaction. Nothing is written if fn returns an error.
func (r *UserRepository) Update(ctx context.Context, userID int64, fn func(u *model.User) error) (*model.User, error) {
	var updated *model.User
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		updated, err = mutateUser(ctx, tx, userID, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateWithWorkout is Update plus inserting the workout session, atomically.
func (r *UserRepository) UpdateWithWorkout(ctx context.Context, userID int64, session *model.WorkoutSession, fn func(u *model.User) error) (*model.User, error) {
	var updated *model.User
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		updated, err = mutateUser(ctx, tx, userID, fn)
		if err != nil {
			return err
		}
		return insertWorkoutSession(ctx, tx, session)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateWithAwards claims the all-quest award markers of the (userID, date)
// sheet and runs fn with the markers this call won, in one transaction. If fn
// or the user write fails the markers stay unclaimed.
func (r *UserRepository) UpdateWithAwards(ctx context.Context, userID int64, date string, fn func(u *model.User, won model.Awards) error) (*model.User, error) {
	var updated *model.User
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		won, err := markAwards(ctx, tx, userID, date)
		if err != nil {
			return err
		}
		updated, err = mutateUser(ctx, tx, userID, func(u *model.User) error {
			return fn(u, won)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func mutateUser(ctx context.Context, q querier, userID int64, fn func(u *model.User) error) (*model.User, error) {
	selectQuery := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	user, err := scanUser(q.QueryRow(ctx, selectQuery, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	if err := fn(user); err != nil {
		return nil, err
	}

	updateQuery := `
		UPDATE users SET
			level = $2, experience = $3,
			strength = $4, stamina = $5, agility = $6,
			strength_xp = $7, stamina_xp = $8, agility_xp = $9,
			current_streak = $10, longest_streak = $11,
			last_activity_date = $12, last_streak_date = $13,
			streak_freeze_count = $14,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	updated, err := scanUser(q.QueryRow(ctx, updateQuery,
		userID,
		user.Level, user.Experience,
		user.Strength, user.Stamina, user.Agility,
		user.StrengthXP, user.StaminaXP, user.AgilityXP,
		user.CurrentStreak, user.LongestStreak,
		user.LastActivityDate, user.LastStreakDate,
		user.StreakFreezeCount,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return updated, nil
}

// ApplyStreakFreeze consumes one streak freeze and back-fills the streak
// dates to date. It only succeeds when the user has a streak, has a freeze,
// and has not already been back-filled to date, so concurrent callers
// consume at most one freeze.
func (r *UserRepository) ApplyStreakFreeze(ctx context.Context, userID int64, date string) (bool, error) {
	const query = `
		UPDATE users
		SET streak_freeze_count = streak_freeze_count - 1,
			last_activity_date = $2,
			last_streak_date = $2,
			updated_at = NOW()
		WHERE id = $1
		  AND streak_freeze_count > 0
		  AND current_streak > 0
		  AND last_streak_date < $2
	`

	result, err := r.pool.Exec(ctx, query, userID, date)
	if err != nil {
		return false, fmt.Errorf("failed to apply streak freeze: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// BreakStreak zeroes a streak whose last credited date is before since.
func (r *UserRepository) BreakStreak(ctx context.Context, userID int64, since string) (bool, error) {
	const query = `
		UPDATE users
		SET current_streak = 0, updated_at = NOW()
		WHERE id = $1 AND current_streak > 0 AND last_streak_date < $2
	`

	result, err := r.pool.Exec(ctx, query, userID, since)
	if err != nil {
		return false, fmt.Errorf("failed to break streak: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListRefs returns every user's ID and timezone for batch jobs.
func (r *UserRepository) ListRefs(ctx context.Context) ([]model.UserRef, error) {
	const query = `SELECT id, timezone FROM users ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var refs []model.UserRef
	for rows.Next() {
		var ref model.UserRef
		if err := rows.Scan(&ref.ID, &ref.Timezone); err != nil {
			return nil, fmt.Errorf("failed to scan user ref: %w", err)
		}
		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return refs, nil
}

// GetTopUsers retrieves the top N users by experience.
func (r *UserRepository) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY experience DESC, id LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}
