// Package db provides PostgreSQL connection management and schema setup.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"guild-bot/internal/config"
)

// Pool wraps pgxpool.Pool with additional functionality.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new PostgreSQL connection pool.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.PoolSize)
	poolConfig.MinConns = int32(cfg.PoolSize / 4)
	if poolConfig.MinConns < 1 {
		poolConfig.MinConns = 1
	}

	poolConfig.ConnConfig.ConnectTimeout = orDefault(cfg.ConnectTimeout, 10*time.Second)
	poolConfig.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, time.Hour)
	poolConfig.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, 30*time.Minute)
	poolConfig.HealthCheckPeriod = 30 * time.Second

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Int("pool_size", cfg.PoolSize).
		Msg("Connecting to PostgreSQL")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to PostgreSQL")

	return &Pool{Pool: pool}, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		log.Info().Msg("PostgreSQL connection pool closed")
	}
}

// HealthCheck performs a health check on the database connection.
func (p *Pool) HealthCheck(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "users table",
		sql: `
		CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL DEFAULT '',
			level INT NOT NULL DEFAULT 1 CHECK (level >= 1),
			experience BIGINT NOT NULL DEFAULT 0 CHECK (experience >= 0),
			strength INT NOT NULL DEFAULT 1 CHECK (strength >= 1),
			stamina INT NOT NULL DEFAULT 1 CHECK (stamina >= 1),
			agility INT NOT NULL DEFAULT 1 CHECK (agility >= 1),
			strength_xp BIGINT NOT NULL DEFAULT 0,
			stamina_xp BIGINT NOT NULL DEFAULT 0,
			agility_xp BIGINT NOT NULL DEFAULT 0,
			current_streak INT NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
			longest_streak INT NOT NULL DEFAULT 0,
			last_activity_date VARCHAR(10) NOT NULL DEFAULT '',
			last_streak_date VARCHAR(10) NOT NULL DEFAULT '',
			streak_freeze_count INT NOT NULL DEFAULT 0 CHECK (streak_freeze_count >= 0),
			timezone VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_experience ON users(experience DESC);`,
	},
	{
		name: "daily_progress table",
		sql: `
		CREATE TABLE IF NOT EXISTS daily_progress (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			date VARCHAR(10) NOT NULL,
			hydration BOOLEAN NOT NULL DEFAULT FALSE,
			steps BOOLEAN NOT NULL DEFAULT FALSE,
			protein BOOLEAN NOT NULL DEFAULT FALSE,
			sleep BOOLEAN NOT NULL DEFAULT FALSE,
			xp_awarded BOOLEAN NOT NULL DEFAULT FALSE,
			streak_freeze_awarded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, date)
		);`,
	},
	{
		name: "workout_sessions table",
		sql: `
		CREATE TABLE IF NOT EXISTS workout_sessions (
			id UUID PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			date VARCHAR(10) NOT NULL,
			source VARCHAR(16) NOT NULL,
			duration_minutes INT NOT NULL DEFAULT 0,
			estimated_minutes INT NOT NULL DEFAULT 0,
			xp_total BIGINT NOT NULL DEFAULT 0,
			xp_str BIGINT NOT NULL DEFAULT 0,
			xp_sta BIGINT NOT NULL DEFAULT 0,
			xp_agi BIGINT NOT NULL DEFAULT 0,
			bonus_xp BIGINT NOT NULL DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_workout_sessions_user_date ON workout_sessions(user_id, date);`,
	},
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("migration", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
