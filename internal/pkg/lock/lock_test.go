package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// For any set of concurrent increments under the user's lock, the result
// equals sequential execution and no lock entries are left behind.
func TestConcurrentUpdatesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(0, 100000).Draw(t, "initial")
		deltas := rapid.SliceOfN(rapid.Int64Range(0, 500), 2, 20).Draw(t, "deltas")
		userID := rapid.Int64Range(1, 1000000).Draw(t, "userID")

		ul := NewUserLock()
		value := initial
		want := initial
		for _, d := range deltas {
			want += d
		}

		var wg sync.WaitGroup
		for _, d := range deltas {
			wg.Add(1)
			go func(d int64) {
				defer wg.Done()
				_ = ul.WithLock(context.Background(), userID, func() error {
					v := value
					time.Sleep(time.Microsecond)
					value = v + d
					return nil
				})
			}(d)
		}
		wg.Wait()

		if value != want {
			t.Fatalf("value %d, want %d", value, want)
		}
		if n := ul.Tracked(); n != 0 {
			t.Fatalf("%d lock entries left", n)
		}
	})
}

func TestUserLock_TryLock(t *testing.T) {
	ul := NewUserLock()

	require.True(t, ul.TryLock(1))
	assert.True(t, ul.IsLocked(1))
	assert.False(t, ul.TryLock(1))
	assert.True(t, ul.TryLock(2), "other users are independent")

	ul.Unlock(1)
	ul.Unlock(2)
	assert.False(t, ul.IsLocked(1))
	assert.Equal(t, 0, ul.Tracked())
}

func TestUserLock_UnlockNotHeld(t *testing.T) {
	ul := NewUserLock()
	ul.Unlock(42)
	assert.Equal(t, 0, ul.Tracked())
}

func TestUserLock_LockWithTimeout(t *testing.T) {
	ul := NewUserLock()
	ctx := context.Background()

	require.NoError(t, ul.Lock(ctx, 1))

	err := ul.LockWithTimeout(ctx, 1, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	ul.Unlock(1)
	require.NoError(t, ul.LockWithTimeout(ctx, 1, time.Second))
	ul.Unlock(1)
	assert.Equal(t, 0, ul.Tracked())
}

func TestUserLock_CancelledContext(t *testing.T) {
	ul := NewUserLock()
	require.True(t, ul.TryLock(1))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- ul.Lock(ctx, 1)
	}()
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)

	err := ul.WithLock(ctx, 1, func() error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	ul.Unlock(1)
	assert.Equal(t, 0, ul.Tracked())
}

func TestUserLock_WithLockReturnsFnError(t *testing.T) {
	ul := NewUserLock()
	err := ul.WithLock(context.Background(), 7, func() error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, ul.IsLocked(7))
}
