package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sitegen-realtime/internal/domain"
	"sitegen-realtime/internal/domain/model"
	"sitegen-realtime/internal/domain/ports/repository"
	"sitegen-realtime/internal/infra/metrics"
	"sitegen-realtime/internal/infra/redis"
	"sitegen-realtime/internal/usecase"
)

const (
	scanBatchSize = 200
	scanLockKey   = "recovery:scan"
	scanLockTTL   = 2 * time.Minute
)

// RecoveryLoop drives the stuck-job scan. It polls only while jobs are in
// flight: with nothing generating the ticker is stopped outright and the loop
// parks until Kick wakes it (job submission, or a jobs-collection change
// event). Scans are strictly serialized: cycle N+1 starts only after every
// action from cycle N resolved.
type RecoveryLoop struct {
	jobs     repository.JobRepository
	detector *usecase.Detector
	exec     usecase.RecoveryExecutor
	interval time.Duration
	locker   redis.Locker // optional cross-replica guard

	kick chan struct{}
	now  func() time.Time
	log  *zerolog.Logger
}

func NewRecoveryLoop(
	jobs repository.JobRepository,
	detector *usecase.Detector,
	exec usecase.RecoveryExecutor,
	interval time.Duration,
	locker redis.Locker,
	logger *zerolog.Logger,
) *RecoveryLoop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	loopLog := logger.With().Str("component", "RecoveryLoop").Logger()
	return &RecoveryLoop{
		jobs:     jobs,
		detector: detector,
		exec:     exec,
		interval: interval,
		locker:   locker,
		kick:     make(chan struct{}, 1),
		now:      time.Now,
		log:      &loopLog,
	}
}

// Kick wakes a parked loop. Safe to call from any goroutine; coalesces.
func (l *RecoveryLoop) Kick() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

func (l *RecoveryLoop) Run(ctx context.Context) error {
	l.log.Info().Dur("interval", l.interval).Msg("Starting recovery loop")
	for {
		inFlight, err := l.jobs.ListInFlight(ctx, scanBatchSize)
		if err != nil {
			l.log.Error().Err(err).Msg("list in-flight jobs")
			if !wait(ctx, l.interval) {
				return ctx.Err()
			}
			continue
		}

		if len(inFlight) == 0 {
			select {
			case <-ctx.Done():
				l.log.Info().Msg("Stopping recovery loop")
				return ctx.Err()
			case <-l.kick:
				continue
			}
		}

		l.cycle(ctx, inFlight)

		select {
		case <-ctx.Done():
			l.log.Info().Msg("Stopping recovery loop")
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
}

func (l *RecoveryLoop) cycle(ctx context.Context, inFlight []*model.Job) {
	if l.locker != nil {
		token, err := l.locker.TryLock(ctx, scanLockKey, scanLockTTL)
		if err != nil {
			l.log.Debug().Msg("scan lock held elsewhere, skipping cycle")
			return
		}
		defer func() {
			if err := l.locker.Unlock(ctx, scanLockKey, token); err != nil {
				l.log.Warn().Err(err).Msg("scan lock release failed")
			}
		}()
	}

	metrics.IncRecoveryScan()
	res := l.detector.Scan(inFlight, l.now())
	if len(res.ToRetry) == 0 && len(res.ToFail) == 0 {
		return
	}
	l.log.Info().
		Int("in_flight", len(inFlight)).
		Int("to_retry", len(res.ToRetry)).
		Int("to_fail", len(res.ToFail)).
		Msg("stuck jobs classified")

	// Different jobs may recover concurrently; the WaitGroup keeps the cycle
	// itself serialized.
	var wg sync.WaitGroup
	for _, job := range res.ToRetry {
		wg.Add(1)
		go func(j *model.Job) {
			defer wg.Done()
			if err := l.exec.Retry(ctx, j); err != nil {
				if !errors.Is(err, domain.ErrRecoveryInFlight) {
					l.log.Error().Err(err).Str("job", j.ID).Msg("retry failed")
				}
				return
			}
			metrics.IncJobRetried(string(j.Kind))
		}(job)
	}
	for _, job := range res.ToFail {
		wg.Add(1)
		go func(j *model.Job) {
			defer wg.Done()
			err := l.exec.Fail(ctx, j, "generation stalled past the failure threshold")
			if err != nil {
				if !errors.Is(err, domain.ErrRecoveryInFlight) {
					l.log.Error().Err(err).Str("job", j.ID).Msg("force-fail failed")
				}
				return
			}
			metrics.IncJobFailed(string(j.Kind))
		}(job)
	}
	wg.Wait()
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
