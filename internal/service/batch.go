package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"guild-bot/internal/metrics"
)

const defaultBatchSize = 10

// BatchReport summarizes one batch reset run.
type BatchReport struct {
	Users  int
	Reset  int
	Failed int
}

// BatchResetter runs the daily reset for every user with bounded concurrency.
type BatchResetter struct {
	users     UserStore
	daily     *DailyService
	metrics   *metrics.Manager
	batchSize int
}

// NewBatchResetter creates a BatchResetter running at most batchSize users at once.
func NewBatchResetter(users UserStore, daily *DailyService, m *metrics.Manager, batchSize int) *BatchResetter {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &BatchResetter{users: users, daily: daily, metrics: m, batchSize: batchSize}
}

// Run resets every user whose day has rolled over. A failing user does not
// stop the others; all failures are returned combined.
func (b *BatchResetter) Run(ctx context.Context) (BatchReport, error) {
	start := time.Now()

	refs, err := b.users.ListRefs(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("failed to list users: %w", err)
	}

	var (
		mu     sync.Mutex
		report = BatchReport{Users: len(refs)}
		errs   error
	)

	var g errgroup.Group
	g.SetLimit(b.batchSize)
	for _, ref := range refs {
		g.Go(func() error {
			reset, err := b.daily.CheckAndResetDailyQuests(ctx, ref.ID, ref.Timezone)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				errs = multierr.Append(errs, fmt.Errorf("user %d: %w", ref.ID, err))
				log.Error().Err(err).Int64("user_id", ref.ID).Msg("Daily reset failed")
				return nil
			}
			if reset {
				report.Reset++
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	b.metrics.BatchRun(elapsed.Seconds(), report.Failed)
	log.Info().
		Int("users", report.Users).
		Int("reset", report.Reset).
		Int("failed", report.Failed).
		Dur("elapsed", elapsed).
		Msg("Batch daily reset finished")

	return report, errs
}
