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

const uniqueViolation = "23505"

const dailyProgressColumns = `user_id, date, hydration, steps, protein, sleep,
	xp_awarded, streak_freeze_awarded, created_at`

func scanDailyProgress(row pgx.Row) (*model.DailyProgress, error) {
	var p model.DailyProgress
	err := row.Scan(
		&p.UserID,
		&p.Date,
		&p.Hydration,
		&p.Steps,
		&p.Protein,
		&p.Sleep,
		&p.XPAwarded,
		&p.StreakFreezeAwarded,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// questColumn maps a quest to its boolean column. Only known quests reach SQL.
func questColumn(q model.Quest) (string, error) {
	switch q {
	case model.QuestHydration:
		return "hydration", nil
	case model.QuestSteps:
		return "steps", nil
	case model.QuestProtein:
		return "protein", nil
	case model.QuestSleep:
		return "sleep", nil
	}
	return "", fmt.Errorf("unknown quest %q", q)
}

// DailyProgressRepository handles daily quest sheets.
type DailyProgressRepository struct {
	pool *pgxpool.Pool
}

// NewDailyProgressRepository creates a new DailyProgressRepository instance.
func NewDailyProgressRepository(pool *pgxpool.Pool) *DailyProgressRepository {
	return &DailyProgressRepository{pool: pool}
}

// Get returns the user's sheet for date.
// Returns ErrDailyProgressNotFound if there is none.
func (r *DailyProgressRepository) Get(ctx context.Context, userID int64, date string) (*model.DailyProgress, error) {
	query := `SELECT ` + dailyProgressColumns + ` FROM daily_progress WHERE user_id = $1 AND date = $2`

	p, err := scanDailyProgress(r.pool.QueryRow(ctx, query, userID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDailyProgressNotFound
		}
		return nil, fmt.Errorf("failed to get daily progress: %w", err)
	}
	return p, nil
}

// Latest returns the user's most recent sheet.
func (r *DailyProgressRepository) Latest(ctx context.Context, userID int64) (*model.DailyProgress, error) {
	query := `SELECT ` + dailyProgressColumns + ` FROM daily_progress
		WHERE user_id = $1 ORDER BY date DESC LIMIT 1`

	p, err := scanDailyProgress(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDailyProgressNotFound
		}
		return nil, fmt.Errorf("failed to get latest daily progress: %w", err)
	}
	return p, nil
}

// Insert creates an empty sheet for (userID, date).
// Returns ErrDuplicateDailyProgress if one already exists.
func (r *DailyProgressRepository) Insert(ctx context.Context, userID int64, date string) (*model.DailyProgress, error) {
	query := `INSERT INTO daily_progress (user_id, date, created_at)
		VALUES ($1, $2, NOW())
		RETURNING ` + dailyProgressColumns

	p, err := scanDailyProgress(r.pool.QueryRow(ctx, query, userID, date))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateDailyProgress
		}
		return nil, fmt.Errorf("failed to insert daily progress: %w", err)
	}
	return p, nil
}

// SetQuest marks quest q complete on the (userID, date) sheet.
func (r *DailyProgressRepository) SetQuest(ctx context.Context, userID int64, date string, q model.Quest) (*model.DailyProgress, error) {
	col, err := questColumn(q)
	if err != nil {
		return nil, err
	}

	query := `UPDATE daily_progress SET ` + col + ` = TRUE
		WHERE user_id = $1 AND date = $2
		RETURNING ` + dailyProgressColumns

	p, err := scanDailyProgress(r.pool.QueryRow(ctx, query, userID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDailyProgressNotFound
		}
		return nil, fmt.Errorf("failed to set quest: %w", err)
	}
	return p, nil
}

// markAwards flips both award markers of the (userID, date) sheet from
// false to true on q and reports which flips this call performed.
func markAwards(ctx context.Context, q querier, userID int64, date string) (model.Awards, error) {
	var won model.Awards

	result, err := q.Exec(ctx, `UPDATE daily_progress SET xp_awarded = TRUE
		WHERE user_id = $1 AND date = $2 AND NOT xp_awarded`, userID, date)
	if err != nil {
		return won, fmt.Errorf("failed to mark xp award: %w", err)
	}
	won.XP = result.RowsAffected() > 0

	result, err = q.Exec(ctx, `UPDATE daily_progress SET streak_freeze_awarded = TRUE
		WHERE user_id = $1 AND date = $2 AND NOT streak_freeze_awarded`, userID, date)
	if err != nil {
		return won, fmt.Errorf("failed to mark streak freeze award: %w", err)
	}
	won.StreakFreeze = result.RowsAffected() > 0
	return won, nil
}
