// Package redisstore keeps HP regen state and workout timer snapshots in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"guild-bot/internal/regen"
	"guild-bot/internal/workout"
)

// Store implements regen.Store and workout.SnapshotStore.
type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

var (
	_ regen.Store           = (*Store)(nil)
	_ workout.SnapshotStore = (*Store)(nil)
)

// New creates a Store. Entries expire after ttl; 0 keeps them forever.
func New(client redis.Cmdable, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func hpKey(userID int64) string {
	return fmt.Sprintf("guild::hp::%d", userID)
}

func timerKey(userID int64) string {
	return fmt.Sprintf("guild::timer::%d", userID)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) load(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) LoadHP(ctx context.Context, userID int64) (regen.State, bool, error) {
	var st regen.State
	ok, err := s.load(ctx, hpKey(userID), &st)
	return st, ok, err
}

func (s *Store) SaveHP(ctx context.Context, userID int64, st regen.State) error {
	return s.save(ctx, hpKey(userID), st)
}

func (s *Store) LoadTimer(ctx context.Context, userID int64) (workout.Snapshot, bool, error) {
	var snap workout.Snapshot
	ok, err := s.load(ctx, timerKey(userID), &snap)
	return snap, ok, err
}

func (s *Store) SaveTimer(ctx context.Context, userID int64, snap workout.Snapshot) error {
	return s.save(ctx, timerKey(userID), snap)
}

func (s *Store) DeleteTimer(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, timerKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del timer: %w", err)
	}
	return nil
}
