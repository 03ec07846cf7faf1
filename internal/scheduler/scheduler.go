// Package scheduler runs the periodic daily reset sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"guild-bot/internal/service"
)

const defaultInterval = 15 * time.Minute

// Runner is one sweep over all users.
type Runner interface {
	Run(ctx context.Context) (service.BatchReport, error)
}

// Scheduler triggers Runner on a fixed interval. A sweep that is still
// running when the next one is due causes that tick to be skipped.
type Scheduler struct {
	sched    gocron.Scheduler
	runner   Runner
	interval time.Duration
	job      gocron.Job
	cancel   context.CancelFunc
}

// New creates a scheduler. A nil clock uses the wall clock.
func New(clock clockwork.Clock, runner Runner, interval time.Duration) (*Scheduler, error) {
	if interval <= 0 {
		interval = defaultInterval
	}

	var opts []gocron.SchedulerOption
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Scheduler{sched: sched, runner: runner, interval: interval}, nil
}

// Start registers the sweep, runs it once immediately and then every interval.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	job, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sweep, ctx),
		gocron.WithName("daily-reset"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("register daily reset job: %w", err)
	}

	s.job = job
	s.cancel = cancel
	s.sched.Start()

	log.Info().Dur("interval", s.interval).Msg("Daily reset scheduler started")
	return nil
}

// RunNow triggers an extra sweep outside the interval.
func (s *Scheduler) RunNow() error {
	if s.job == nil {
		return fmt.Errorf("scheduler not started")
	}
	return s.job.RunNow()
}

func (s *Scheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.runner.Run(ctx)
	if err != nil {
		log.Error().Err(err).Int("failed", report.Failed).Msg("Daily reset sweep finished with errors")
		return
	}
	log.Debug().Int("users", report.Users).Int("reset", report.Reset).Msg("Daily reset sweep finished")
}

// Stop cancels a running sweep and waits for the scheduler to shut down.
func (s *Scheduler) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	log.Info().Msg("Daily reset scheduler stopped")
	return nil
}
