package workout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"guild-bot/internal/pkg/lock"
)

// Tracker errors.
var (
	ErrTimerActive = errors.New("a workout timer is already active")
	ErrNoTimer     = errors.New("no active workout timer")
	ErrNotComplete = errors.New("workout timer is not completed")
)

// SnapshotStore persists timers so a restart can recover them.
type SnapshotStore interface {
	SaveTimer(ctx context.Context, userID int64, s Snapshot) error
	LoadTimer(ctx context.Context, userID int64) (Snapshot, bool, error)
	DeleteTimer(ctx context.Context, userID int64) error
}

// Result is a finished timed workout. StartedAt identifies the run.
type Result struct {
	EstimatedMinutes int
	FinalMinutes     int
	Category         string
	XP               int64
	StartedAt        time.Time
}

// CreditFunc records a finished workout. It may be called again for a run
// it already recorded and must not credit it twice.
type CreditFunc func(ctx context.Context, res Result) error

// Tracker keeps one timer per user and backs each state change up to a
// SnapshotStore.
type Tracker struct {
	clock  clockwork.Clock
	opts   Options
	store  SnapshotStore
	onTick func(userID int64, elapsed time.Duration)

	mu     sync.Mutex
	timers map[int64]*Timer

	// finishing serializes Complete and Cancel per user.
	finishing *lock.UserLock
}

// NewTracker creates a Tracker. onTick may be nil.
func NewTracker(clock clockwork.Clock, store SnapshotStore, opts Options, onTick func(userID int64, elapsed time.Duration)) *Tracker {
	return &Tracker{
		clock:     clock,
		opts:      opts,
		store:     store,
		onTick:    onTick,
		timers:    make(map[int64]*Timer),
		finishing: lock.NewUserLock(),
	}
}

func (tr *Tracker) newTimer(userID int64) *Timer {
	opts := tr.opts
	if tr.onTick != nil {
		opts.OnTick = func(elapsed time.Duration) { tr.onTick(userID, elapsed) }
	}
	return NewTimer(tr.clock, opts)
}

// get returns the user's timer, recovering it from the store if this
// process does not hold it.
func (tr *Tracker) get(ctx context.Context, userID int64) (*Timer, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if t, ok := tr.timers[userID]; ok {
		return t, nil
	}

	snap, ok, err := tr.store.LoadTimer(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load timer: %w", err)
	}
	if !ok {
		return nil, ErrNoTimer
	}

	t := tr.newTimer(userID)
	if err := t.Restore(snap); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Discarding unusable timer snapshot")
		_ = tr.store.DeleteTimer(ctx, userID)
		return nil, ErrNoTimer
	}
	tr.timers[userID] = t
	log.Info().Int64("user_id", userID).Str("state", string(snap.State)).Msg("Workout timer recovered")
	return t, nil
}

// Get returns the user's active timer.
func (tr *Tracker) Get(ctx context.Context, userID int64) (*Timer, error) {
	return tr.get(ctx, userID)
}

// Start starts a timer for the user.
func (tr *Tracker) Start(ctx context.Context, userID int64, estimatedMinutes int, category string) (*Timer, error) {
	_, err := tr.get(ctx, userID)
	if err == nil {
		return nil, ErrTimerActive
	}
	if !errors.Is(err, ErrNoTimer) {
		return nil, err
	}

	t := tr.newTimer(userID)
	if err := t.Start(estimatedMinutes, category); err != nil {
		return nil, err
	}

	tr.mu.Lock()
	if _, ok := tr.timers[userID]; ok {
		tr.mu.Unlock()
		t.Close()
		return nil, ErrTimerActive
	}
	tr.timers[userID] = t
	tr.mu.Unlock()

	if err := tr.store.SaveTimer(ctx, userID, t.Snapshot()); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to back up workout timer")
	}
	return t, nil
}

// Stop stops the user's timer.
func (tr *Tracker) Stop(ctx context.Context, userID int64) (Snapshot, error) {
	t, err := tr.get(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if _, err := t.Stop(); err != nil {
		return Snapshot{}, err
	}
	return tr.save(ctx, userID, t), nil
}

// Confirm resolves the user's timer awaiting confirmation.
func (tr *Tracker) Confirm(ctx context.Context, userID int64, choice Choice, manualMinutes int) (Snapshot, error) {
	t, err := tr.get(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := t.Confirm(choice, manualMinutes); err != nil {
		return Snapshot{}, err
	}
	return tr.save(ctx, userID, t), nil
}

func (tr *Tracker) save(ctx context.Context, userID int64, t *Timer) Snapshot {
	snap := t.Snapshot()
	if err := tr.store.SaveTimer(ctx, userID, snap); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to back up workout timer")
	}
	return snap
}

// Finish removes a completed timer and returns its result.
func (tr *Tracker) Finish(ctx context.Context, userID int64) (Result, error) {
	return tr.Complete(ctx, userID, nil)
}

// Complete records a completed timer through credit, then removes it. If
// credit fails the timer is kept so the user can retry.
func (tr *Tracker) Complete(ctx context.Context, userID int64, credit CreditFunc) (Result, error) {
	var res Result
	err := tr.finishing.WithLock(ctx, userID, func() error {
		t, err := tr.get(ctx, userID)
		if err != nil {
			return err
		}
		snap := t.Snapshot()
		if snap.State != StateCompleted {
			return ErrNotComplete
		}

		res = Result{
			EstimatedMinutes: snap.EstimatedMinutes,
			FinalMinutes:     snap.FinalMinutes,
			Category:         snap.Category,
			XP:               t.XPReward(),
			StartedAt:        snap.StartedAt,
		}
		if credit != nil {
			if err := credit(ctx, res); err != nil {
				return err
			}
		}

		// A leftover backup is recovered later and credited as a no-op.
		if err := tr.remove(ctx, userID); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Workout recorded but timer backup kept")
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Cancel discards the user's timer in any state.
func (tr *Tracker) Cancel(ctx context.Context, userID int64) error {
	return tr.finishing.WithLock(ctx, userID, func() error {
		if _, err := tr.get(ctx, userID); err != nil {
			return err
		}
		return tr.remove(ctx, userID)
	})
}

func (tr *Tracker) remove(ctx context.Context, userID int64) error {
	tr.mu.Lock()
	t, ok := tr.timers[userID]
	delete(tr.timers, userID)
	tr.mu.Unlock()

	if ok {
		t.Close()
	}
	if err := tr.store.DeleteTimer(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete timer backup: %w", err)
	}
	return nil
}

// Close stops every timer goroutine. Snapshots stay in the store.
func (tr *Tracker) Close() {
	tr.mu.Lock()
	timers := tr.timers
	tr.timers = make(map[int64]*Timer)
	tr.mu.Unlock()

	for _, t := range timers {
		t.Close()
	}
}
