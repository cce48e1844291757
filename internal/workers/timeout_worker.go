package workers

import (
	"context"
	"time"

	"beehive/internal/services/rollup"
	"beehive/pkg/errors"
)

// TimeoutSweeper runs the rollup engine's sweeps
type TimeoutSweeper interface {
	ProcessAllTimeouts(ctx context.Context) (*rollup.SweepResult, error)
}

// TimeoutWorker periodically drives the rollup and timeout engine: expired
// pending rewards, lapsed reissued rewards and upgrade timers.
type TimeoutWorker struct {
	*BaseWorker
	sweeper TimeoutSweeper
}

// NewTimeoutWorker creates a new timeout sweep worker
func NewTimeoutWorker(sweeper TimeoutSweeper, interval time.Duration, enabled bool) *TimeoutWorker {
	return &TimeoutWorker{
		BaseWorker: NewBaseWorker("timeout_sweep", interval, enabled),
		sweeper:    sweeper,
	}
}

// Run executes one sweep. A sweep lock held by another instance is a
// normal skip, not a failure.
func (w *TimeoutWorker) Run(ctx context.Context) error {
	start := time.Now()

	result, err := w.sweeper.ProcessAllTimeouts(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrSweepLocked) {
			w.Log().Debugw("Sweep lock held elsewhere, skipping round")
			return nil
		}
		w.RecordError(err, time.Since(start))
		return err
	}

	w.RecordRun(time.Since(start))

	if result.ExpiredProcessed > 0 || result.TimersExpired > 0 || result.TimersCompleted > 0 {
		w.Log().Infow("Timeout sweep made progress",
			"expired_processed", result.ExpiredProcessed,
			"timers_completed", result.TimersCompleted,
			"timers_expired", result.TimersExpired,
		)
	}

	return nil
}
