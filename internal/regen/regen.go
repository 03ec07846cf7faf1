// Package regen implements passive HP regeneration.
package regen

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning is returned by Start on a running service.
var ErrAlreadyRunning = errors.New("regen service already running")

const (
	DefaultInterval      = 5 * time.Second
	DefaultRatePerMinute = 0.01
	DefaultMaxHP         = 100
	DefaultIdleTimeout   = 15 * time.Minute

	persistTimeout = 2 * time.Second
)

// State is a character's HP, the instant regeneration was last applied and
// the route the character is on.
type State struct {
	HP          float64 `json:"hp"`
	MaxHP       float64 `json:"max_hp"`
	LastRegenMs int64   `json:"last_regen_ms"`
	Route       string  `json:"route,omitempty"`
}

// idleAtFull reports whether moving from a to b only advanced the clock of
// a character at full HP. Such a change is not worth a store write.
func idleAtFull(a, b State) bool {
	return a.HP >= a.MaxHP && b.HP >= b.MaxHP &&
		a.HP == b.HP && a.MaxHP == b.MaxHP && a.Route == b.Route
}

// Store persists regen state per user.
type Store interface {
	LoadHP(ctx context.Context, userID int64) (State, bool, error)
	SaveHP(ctx context.Context, userID int64, s State) error
}

// Options tunes a Service. Zero values take the defaults.
type Options struct {
	Interval      time.Duration
	RatePerMinute float64
	DefaultMaxHP  float64
	// IsExempt reports routes on which no HP accrues.
	IsExempt func(route string) bool
	// IdleTimeout is how long a Registry keeps an unused service running.
	IdleTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.RatePerMinute <= 0 {
		o.RatePerMinute = DefaultRatePerMinute
	}
	if o.DefaultMaxHP <= 0 {
		o.DefaultMaxHP = DefaultMaxHP
	}
	if o.IsExempt == nil {
		o.IsExempt = ExemptRoutes()
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	return o
}

// ExemptRoutes returns a predicate matching each route and its sub-routes.
func ExemptRoutes(routes ...string) func(string) bool {
	return func(route string) bool {
		route = strings.Trim(route, "/")
		for _, r := range routes {
			r = strings.Trim(r, "/")
			if r == "" {
				continue
			}
			if route == r || strings.HasPrefix(route, r+"/") {
				return true
			}
		}
		return false
	}
}

// Service regenerates one character's HP on an interval and on demand.
type Service struct {
	clock  clockwork.Clock
	store  Store
	userID int64
	opts   Options

	mu      sync.Mutex
	state   State
	visible bool
	subs    map[int]func(State)
	nextSub int
	done    chan struct{}
	version uint64

	// saveMu orders store writes; saved is the newest version written.
	saveMu sync.Mutex
	saved  uint64

	wg sync.WaitGroup
}

// New loads the user's state, starting at full default HP when none is stored.
func New(ctx context.Context, clock clockwork.Clock, store Store, userID int64, opts Options) (*Service, error) {
	opts = opts.withDefaults()

	state, ok, err := store.LoadHP(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		state = State{HP: opts.DefaultMaxHP, MaxHP: opts.DefaultMaxHP, LastRegenMs: clock.Now().UnixMilli()}
	}

	return &Service{
		clock:   clock,
		store:   store,
		userID:  userID,
		opts:    opts,
		state:   state,
		visible: true,
		subs:    make(map[int]func(State)),
	}, nil
}

// State returns the current state without ticking.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Route returns the current route.
func (s *Service) Route() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Route
}

// Subscribe registers fn for every state change. Call the returned func to
// unsubscribe.
func (s *Service) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// ForceTick applies regeneration now.
func (s *Service) ForceTick() State {
	s.mu.Lock()
	before := s.state
	s.tickLocked()
	return s.commitLocked(!idleAtFull(before, s.state))
}

// SetVisible records visibility changes; becoming visible ticks so time
// spent hidden is credited at once.
func (s *Service) SetVisible(visible bool) State {
	s.mu.Lock()
	before := s.state
	s.visible = visible
	if visible {
		s.tickLocked()
	}
	return s.commitLocked(!idleAtFull(before, s.state))
}

// Navigate settles regeneration for the route being left, then switches to route.
func (s *Service) Navigate(route string) State {
	s.mu.Lock()
	before := s.state
	s.tickLocked()
	s.state.Route = route
	return s.commitLocked(!idleAtFull(before, s.state))
}

// SetStats overwrites HP and max HP, clamped to 0 <= hp <= maxHP, and
// restarts the regen clock so no catch-up is granted for time before the write.
func (s *Service) SetStats(hp, maxHP float64) State {
	if math.IsNaN(maxHP) || maxHP < 0 {
		maxHP = 0
	}
	if math.IsNaN(hp) || hp < 0 {
		hp = 0
	}
	if hp > maxHP {
		hp = maxHP
	}

	s.mu.Lock()
	s.state = State{HP: hp, MaxHP: maxHP, LastRegenMs: s.clock.Now().UnixMilli(), Route: s.state.Route}
	return s.commitLocked(true)
}

// tickLocked applies elapsed regeneration. Exempt routes and full HP only
// move the clock forward.
func (s *Service) tickLocked() {
	now := s.clock.Now().UnixMilli()

	if s.opts.IsExempt(s.state.Route) || s.state.HP >= s.state.MaxHP {
		s.state.LastRegenMs = now
		return
	}

	elapsed := now - s.state.LastRegenMs
	if elapsed <= 0 {
		return
	}
	gain := float64(elapsed) / 60000 * s.opts.RatePerMinute * s.state.MaxHP
	s.state.HP = math.Min(s.state.MaxHP, s.state.HP+gain)
	s.state.LastRegenMs = now
}

// commitLocked releases s.mu, persists the state when changed and notifies
// subscribers. Store I/O happens outside s.mu.
func (s *Service) commitLocked(changed bool) State {
	state := s.state
	if changed {
		s.version++
	}
	version := s.version

	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	if changed {
		s.persist(state, version)
	}
	for _, fn := range subs {
		fn(state)
	}
	return state
}

// persist writes state unless a newer version is already stored.
func (s *Service) persist(state State, version uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if version <= s.saved {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.SaveHP(ctx, s.userID, state); err != nil {
		log.Warn().Err(err).Int64("user_id", s.userID).Msg("Failed to persist HP state")
		return
	}
	s.saved = version
}

// Start begins ticking on the configured interval.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrAlreadyRunning
	}

	done := make(chan struct{})
	s.done = done
	ticker := s.clock.NewTicker(s.opts.Interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				s.ForceTick()
			}
		}
	}()
	return nil
}

// Running reports whether the interval is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// Stop ends the interval. Stopping a stopped service is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	s.wg.Wait()
}
