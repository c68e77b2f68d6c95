package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"BillWatch/internal/ports"
)

// TickerScheduler calls a job immediately and then once per interval
// until the job reports done, fails, or the context ends.
type TickerScheduler struct {
	interval time.Duration
	clock    clock.Clock
	location *time.Location
	logger   *slog.Logger
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler ticking every interval.
func NewTickerScheduler(interval time.Duration, clk clock.Clock, logger *slog.Logger) *TickerScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TickerScheduler{
		interval: interval,
		clock:    clk,
		location: time.UTC,
		logger:   logger.With("component", "scheduler"),
	}
}

// WithLocation sets the zone tick timestamps are reported in.
func (t *TickerScheduler) WithLocation(loc *time.Location) *TickerScheduler {
	if loc != nil {
		t.location = loc
	}
	return t
}

// Run blocks until the job is done.
func (t *TickerScheduler) Run(ctx context.Context, job func(ctx context.Context, tick time.Time) (bool, error)) error {
	if job == nil {
		return nil
	}

	tick := t.clock.Now()
	for run := 1; ; run++ {
		tick = tick.In(t.location)
		t.logger.Debug("scheduled run", "run", run, "tick", tick.Format(time.RFC3339))
		done, err := job(ctx, tick)
		if err != nil {
			t.logger.Error("scheduled job failed", "run", run, "error", err)
			return err
		}
		if done {
			t.logger.Info("scheduled job finished", "runs", run)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick = <-t.clock.After(t.interval):
		}
	}
}
