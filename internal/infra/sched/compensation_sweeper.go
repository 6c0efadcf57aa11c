package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain/ports/repository"
	"sitegen-realtime/internal/usecase"
)

const sweepBatchSize = 100

// CompensationSweeper re-runs the idempotent refund over failed jobs whose
// charge is still reserved. It exists for the window where a job was marked
// failed but the ledger was unreachable: the fail path logs and moves on, the
// sweeper settles the debt later.
type CompensationSweeper struct {
	jobs     repository.JobRepository
	comp     usecase.CompensationEngine
	cronSpec string
	log      *zerolog.Logger
}

func NewCompensationSweeper(jobs repository.JobRepository, comp usecase.CompensationEngine, cronSpec string, logger *zerolog.Logger) *CompensationSweeper {
	if cronSpec == "" {
		cronSpec = "@every 10m"
	}
	sweepLog := logger.With().Str("component", "CompensationSweeper").Logger()
	return &CompensationSweeper{jobs: jobs, comp: comp, cronSpec: cronSpec, log: &sweepLog}
}

// Run sweeps once immediately, then on the cron schedule until ctx ends.
func (s *CompensationSweeper) Run(ctx context.Context) error {
	s.log.Info().Str("cron", s.cronSpec).Msg("Starting compensation sweeper")
	s.sweep(ctx)

	c := cron.New()
	if _, err := c.AddFunc(s.cronSpec, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("sweeper cron spec %q: %w", s.cronSpec, err)
	}
	c.Start()

	<-ctx.Done()
	s.log.Info().Msg("Stopping compensation sweeper")
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	return ctx.Err()
}

func (s *CompensationSweeper) sweep(ctx context.Context) {
	stale, err := s.jobs.ListFailedUnrefunded(ctx, sweepBatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("list unrefunded jobs")
		return
	}
	if len(stale) == 0 {
		return
	}

	settled := 0
	for _, job := range stale {
		if err := s.comp.Refund(ctx, job); err != nil {
			s.log.Error().Err(err).Str("job", job.ID).Msg("sweep refund failed")
			continue
		}
		settled++
	}
	if settled > 0 {
		s.log.Info().Int("count", settled).Msg("outstanding refunds settled")
	}
}
