package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/coocood/freecache"
)

// TimezoneResolver caches each user's timezone in memory so the per-message
// daily reset check does not read the user row every time.
type TimezoneResolver struct {
	users UserStore
	cache *freecache.Cache
	ttl   int
}

// NewTimezoneResolver creates a resolver backed by a cache of sizeMB
// megabytes whose entries expire after ttlSeconds (0 means never).
func NewTimezoneResolver(users UserStore, sizeMB, ttlSeconds int) *TimezoneResolver {
	if sizeMB <= 0 {
		sizeMB = 1
	}
	return &TimezoneResolver{
		users: users,
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:   ttlSeconds,
	}
}

func cacheKey(userID int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(userID))
	return key
}

// Resolve returns the user's stored timezone, which may be empty.
func (r *TimezoneResolver) Resolve(ctx context.Context, userID int64) (string, error) {
	v, err := r.cache.Get(cacheKey(userID))
	if err == nil {
		return string(v), nil
	}
	if !errors.Is(err, freecache.ErrNotFound) {
		return "", fmt.Errorf("timezone cache: %w", err)
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	r.Set(userID, user.Timezone)
	return user.Timezone, nil
}

// Set caches tz for the user.
func (r *TimezoneResolver) Set(userID int64, tz string) {
	// Only fails for entries larger than 1/1024 of the cache.
	_ = r.cache.Set(cacheKey(userID), []byte(tz), r.ttl)
}

// Forget drops the cached timezone for the user.
func (r *TimezoneResolver) Forget(userID int64) {
	r.cache.Del(cacheKey(userID))
}

// HitRate exposes the cache hit rate for diagnostics.
func (r *TimezoneResolver) HitRate() float64 {
	return r.cache.HitRate()
}
