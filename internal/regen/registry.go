package regen

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"guild-bot/internal/metrics"
)

type entry struct {
	svc      *Service
	lastUsed time.Time
}

// Registry holds one running Service per user. Services unused for
// Options.IdleTimeout are stopped; their state stays in the store.
type Registry struct {
	clock   clockwork.Clock
	store   Store
	opts    Options
	metrics *metrics.Manager

	mu       sync.Mutex
	services map[int64]*entry
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry creates an empty Registry.
func NewRegistry(clock clockwork.Clock, store Store, opts Options, m *metrics.Manager) *Registry {
	return &Registry{
		clock:    clock,
		store:    store,
		opts:     opts.withDefaults(),
		metrics:  m,
		services: make(map[int64]*entry),
	}
}

// Get returns the user's service, loading and starting it on first use.
func (r *Registry) Get(ctx context.Context, userID int64) (*Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startJanitorLocked()
	now := r.clock.Now()

	if e, ok := r.services[userID]; ok {
		e.lastUsed = now
		return e.svc, nil
	}

	svc, err := New(ctx, r.clock, r.store, userID, r.opts)
	if err != nil {
		return nil, err
	}
	if err := svc.Start(); err != nil {
		return nil, err
	}
	r.services[userID] = &entry{svc: svc, lastUsed: now}
	r.metrics.RegenActive(1)
	return svc, nil
}

// Release stops and forgets the user's service.
func (r *Registry) Release(userID int64) bool {
	r.mu.Lock()
	e, ok := r.services[userID]
	delete(r.services, userID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.svc.Stop()
	r.metrics.RegenActive(-1)
	return true
}

// EvictIdle stops every service unused for the idle timeout and returns
// how many were stopped.
func (r *Registry) EvictIdle() int {
	cutoff := r.clock.Now().Add(-r.opts.IdleTimeout)

	r.mu.Lock()
	var idle []*Service
	for id, e := range r.services {
		if !e.lastUsed.After(cutoff) {
			idle = append(idle, e.svc)
			delete(r.services, id)
		}
	}
	r.mu.Unlock()

	for _, svc := range idle {
		svc.Stop()
	}
	if len(idle) > 0 {
		r.metrics.RegenActive(-len(idle))
		log.Debug().Int("evicted", len(idle)).Msg("Idle HP regen services stopped")
	}
	return len(idle)
}

func (r *Registry) startJanitorLocked() {
	if r.done != nil {
		return
	}
	done := make(chan struct{})
	r.done = done
	ticker := r.clock.NewTicker(r.opts.IdleTimeout / 2)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				r.EvictIdle()
			}
		}
	}()
}

// Len returns the number of running services.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.services)
}

// StopAll stops and forgets every service.
func (r *Registry) StopAll() {
	r.mu.Lock()
	services := r.services
	r.services = make(map[int64]*entry)
	done := r.done
	r.done = nil
	r.mu.Unlock()

	if done != nil {
		close(done)
	}
	r.wg.Wait()

	for _, e := range services {
		e.svc.Stop()
	}
	r.metrics.RegenActive(-len(services))
}
