// Package workout implements the workout timer and its per-user tracker.
package workout

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer errors.
var (
	ErrInvalidState    = errors.New("timer is not in a state that allows this")
	ErrInvalidEstimate = errors.New("estimated minutes must be at least 1")
	ErrInvalidChoice   = errors.New("unknown confirmation choice")
)

// State is a timer state.
type State string

const (
	StateIdle                 State = "idle"
	StateRunning              State = "running"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateCompleted            State = "completed"
)

// Choice resolves a timer awaiting confirmation.
type Choice string

const (
	ChoiceActual   Choice = "actual"
	ChoiceEstimate Choice = "estimate"
	ChoiceManual   Choice = "manual"
)

const (
	tickInterval = time.Second

	DefaultMinRatio             = 0.5
	DefaultMaxRatio             = 2.0
	DefaultXPPerEstimatedMinute = 5
)

// Options tunes a Timer. Zero values take the defaults.
type Options struct {
	XPPerEstimatedMinute int64
	MinRatio             float64
	MaxRatio             float64
	// OnTick receives the elapsed time once per second while running.
	OnTick func(elapsed time.Duration)
}

func (o Options) withDefaults() Options {
	if o.XPPerEstimatedMinute <= 0 {
		o.XPPerEstimatedMinute = DefaultXPPerEstimatedMinute
	}
	if o.MinRatio <= 0 {
		o.MinRatio = DefaultMinRatio
	}
	if o.MaxRatio <= 0 {
		o.MaxRatio = DefaultMaxRatio
	}
	return o
}

// Snapshot is the persisted form of a timer.
type Snapshot struct {
	State            State     `json:"state"`
	EstimatedMinutes int       `json:"estimated_minutes"`
	Category         string    `json:"category,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	StoppedAt        time.Time `json:"stopped_at,omitempty"`
	FinalMinutes     int       `json:"final_minutes,omitempty"`
}

// NeedsConfirmation reports whether elapsed is outside
// [minRatio, maxRatio] times the estimate.
func NeedsConfirmation(elapsed time.Duration, estimatedMinutes int, minRatio, maxRatio float64) bool {
	if estimatedMinutes <= 0 {
		return true
	}
	ratio := elapsed.Minutes() / float64(estimatedMinutes)
	return ratio < minRatio || ratio > maxRatio
}

// roundMinutes rounds to whole minutes, never below 1.
func roundMinutes(d time.Duration) int {
	m := int(math.Round(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

// Timer times one workout: Idle, Running, then Completed or
// AwaitingConfirmation when the elapsed time is far from the estimate.
type Timer struct {
	clock clockwork.Clock
	opts  Options

	mu        sync.Mutex
	state     State
	estimated int
	category  string
	startedAt time.Time
	stoppedAt time.Time
	final     int
	done      chan struct{}

	wg sync.WaitGroup
}

// NewTimer creates an idle timer.
func NewTimer(clock clockwork.Clock, opts Options) *Timer {
	return &Timer{clock: clock, opts: opts.withDefaults(), state: StateIdle}
}

// Start begins timing a workout planned to take estimatedMinutes.
func (t *Timer) Start(estimatedMinutes int, category string) error {
	if estimatedMinutes < 1 {
		return ErrInvalidEstimate
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, t.state)
	}

	t.state = StateRunning
	t.estimated = estimatedMinutes
	t.category = category
	t.startedAt = t.clock.Now()
	t.startTickerLocked()
	return nil
}

func (t *Timer) startTickerLocked() {
	done := make(chan struct{})
	t.done = done
	ticker := t.clock.NewTicker(tickInterval)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				if t.opts.OnTick != nil {
					t.opts.OnTick(t.Elapsed())
				}
			}
		}
	}()
}

// haltTicker stops the tick goroutine. It must be called without t.mu held.
func (t *Timer) haltTicker() {
	t.mu.Lock()
	done := t.done
	t.done = nil
	t.mu.Unlock()

	if done != nil {
		close(done)
	}
	t.wg.Wait()
}

// Stop ends timing and returns the resulting state.
func (t *Timer) Stop() (State, error) {
	t.mu.Lock()
	if t.state != StateRunning {
		state := t.state
		t.mu.Unlock()
		return state, fmt.Errorf("%w: stop from %s", ErrInvalidState, state)
	}
	t.stoppedAt = t.clock.Now()
	elapsed := t.stoppedAt.Sub(t.startedAt)

	if NeedsConfirmation(elapsed, t.estimated, t.opts.MinRatio, t.opts.MaxRatio) {
		t.state = StateAwaitingConfirmation
	} else {
		t.state = StateCompleted
		t.final = roundMinutes(elapsed)
	}
	state := t.state
	t.mu.Unlock()

	t.haltTicker()
	return state, nil
}

// Confirm resolves a timer awaiting confirmation. manualMinutes is only
// used with ChoiceManual and is clamped to at least one minute.
func (t *Timer) Confirm(choice Choice, manualMinutes int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateAwaitingConfirmation {
		return fmt.Errorf("%w: confirm from %s", ErrInvalidState, t.state)
	}

	switch choice {
	case ChoiceActual:
		t.final = roundMinutes(t.stoppedAt.Sub(t.startedAt))
	case ChoiceEstimate:
		t.final = t.estimated
	case ChoiceManual:
		t.final = max(manualMinutes, 1)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}
	t.state = StateCompleted
	return nil
}

// State returns the current state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Elapsed returns the time since start, frozen once stopped.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateIdle:
		return 0
	case StateRunning:
		return t.clock.Since(t.startedAt)
	default:
		return t.stoppedAt.Sub(t.startedAt)
	}
}

// EstimatedMinutes returns the planned duration.
func (t *Timer) EstimatedMinutes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.estimated
}

// FinalMinutes returns the confirmed duration, 0 until completed.
func (t *Timer) FinalMinutes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.final
}

// XPReward is earned per estimated minute, whatever duration was confirmed.
func (t *Timer) XPReward() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts.XPPerEstimatedMinute * int64(t.estimated)
}

// Snapshot captures the timer for persistence.
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		State:            t.state,
		EstimatedMinutes: t.estimated,
		Category:         t.category,
		StartedAt:        t.startedAt,
		StoppedAt:        t.stoppedAt,
		FinalMinutes:     t.final,
	}
}

// Restore loads a snapshot into an idle timer. A running snapshot keeps
// counting from its original start time.
func (t *Timer) Restore(s Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateIdle {
		return fmt.Errorf("%w: restore into %s", ErrInvalidState, t.state)
	}
	switch s.State {
	case StateRunning, StateAwaitingConfirmation, StateCompleted:
	default:
		return fmt.Errorf("%w: snapshot in %q", ErrInvalidState, s.State)
	}
	if s.EstimatedMinutes < 1 {
		return ErrInvalidEstimate
	}

	t.state = s.State
	t.estimated = s.EstimatedMinutes
	t.category = s.Category
	t.startedAt = s.StartedAt
	t.stoppedAt = s.StoppedAt
	t.final = s.FinalMinutes
	if t.state == StateCompleted && t.final < 1 {
		t.final = roundMinutes(t.stoppedAt.Sub(t.startedAt))
	}
	if t.state == StateRunning {
		t.startTickerLocked()
	}
	return nil
}

// Close stops the tick goroutine without changing state.
func (t *Timer) Close() {
	t.haltTicker()
}
