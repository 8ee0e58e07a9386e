package usecase

import (
	"context"
	"log/slog"
	"time"

	"NewYorkCrimes/internal/ports"
)

// Retention prunes old history rows on a schedule.
type Retention struct {
	driver  ports.Scheduler
	history ports.HistoryRepository
	maxAge  time.Duration
	logger  *slog.Logger
}

// NewRetention wires a scheduler to the history repository. A nil history or
// non-positive maxAge disables pruning.
func NewRetention(driver ports.Scheduler, history ports.HistoryRepository, maxAge time.Duration, logger *slog.Logger) *Retention {
	return &Retention{driver: driver, history: history, maxAge: maxAge, logger: logger}
}

// Start registers the prune job with the scheduler.
func (r *Retention) Start(ctx context.Context) error {
	if r.driver == nil || r.history == nil || r.maxAge <= 0 {
		return nil
	}

	job := func(trigger time.Time) {
		r.prune(ctx, trigger)
	}

	return r.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (r *Retention) Stop(ctx context.Context) error {
	if r.driver == nil {
		return nil
	}

	return r.driver.Stop(ctx)
}

func (r *Retention) prune(ctx context.Context, now time.Time) {
	removed, err := r.history.Prune(ctx, now.Add(-r.maxAge))
	if r.logger == nil {
		return
	}
	if err != nil {
		r.logger.Warn("history prune failed", "error", err)
		return
	}
	if removed > 0 {
		r.logger.Info("pruned history", "removed", removed, "max_age", r.maxAge)
	}
}
