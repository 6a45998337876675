// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"

	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server/repositories/nonces"
	"github.com/matenet/backend/internal/timex"
	"github.com/robfig/cron/v3"
)

// PurgeRecorder receives the number of rows removed by a purge run.
type PurgeRecorder interface {
	AddNoncesPurged(n int64)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron   *cron.Cron
	nonces nonces.Repository
	clock  timex.Clock
	stats  PurgeRecorder
	logger logging.Logger
}

// NewScheduler registers the nonce purge under schedule, a five-field
// cron expression or a descriptor such as "@every 15m".
func NewScheduler(schedule string, n nonces.Repository, clock timex.Clock, stats PurgeRecorder, l logging.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		nonces: n,
		clock:  clock,
		stats:  stats,
		logger: l.With("module", "jobs"),
	}
	if _, err := s.cron.AddFunc(schedule, func() { _, _ = s.PurgeNonces(context.Background()) }); err != nil {
		return nil, fmt.Errorf("bad nonce purge schedule %q: %w", schedule, err)
	}
	return s, nil
}

// PurgeNonces deletes nonces that expired before now.
func (s *Scheduler) PurgeNonces(ctx context.Context) (int64, error) {
	n, err := s.nonces.PurgeExpired(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error(ctx, "nonce purge failed", "error", err)
		return 0, err
	}
	if s.stats != nil {
		s.stats.AddNoncesPurged(n)
	}
	if n > 0 {
		s.logger.Info(ctx, "purged expired nonces", "count", n)
	}
	return n, nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
