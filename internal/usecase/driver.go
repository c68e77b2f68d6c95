package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"BillWatch/internal/domain"
	"BillWatch/internal/ports"
)

// DriverConfig is fixed for the lifetime of a Driver.
type DriverConfig struct {
	Scope      string
	BatchSize  int
	FetchDelay time.Duration
	SkipDelay  time.Duration
}

// DriverDeps wires the adapters the batch driver works against.
type DriverDeps struct {
	Upstream ports.Upstream
	Cursors  ports.CursorRepository
	Records  ports.RecordRepository
	Strategy ports.CandidateStrategy
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Report summarises one driver invocation.
type Report struct {
	Status   domain.RunStatus `json:"status"`
	Scope    string           `json:"scope"`
	Position int              `json:"position"`
	Total    int              `json:"total"`
	Upserted int              `json:"upserted"`
	Skipped  int              `json:"skipped"`
	Errors   int              `json:"errors"`
	Cached   int              `json:"cached,omitempty"`
	Failures []string         `json:"failures,omitempty"`
}

// StepOptions tunes a single invocation.
type StepOptions struct {
	Reset bool
}

// Driver advances the cache-building cursor of one scope, one batch per call.
type Driver struct {
	cfg      DriverConfig
	upstream ports.Upstream
	cursors  ports.CursorRepository
	records  ports.RecordRepository
	strategy ports.CandidateStrategy
	clock    clock.Clock
	logger   *slog.Logger
}

// NewDriver constructs the batch driver.
func NewDriver(cfg DriverConfig, deps DriverDeps) *Driver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		cfg:      cfg,
		upstream: deps.Upstream,
		cursors:  deps.Cursors,
		records:  deps.Records,
		strategy: deps.Strategy,
		clock:    clk,
		logger:   logger.With("component", "driver", "scope", cfg.Scope),
	}
}

// Step runs one invocation: bootstrap when the cursor is absent, one batch
// when it is in progress, or a completion report.
func (d *Driver) Step(ctx context.Context, opts StepOptions) (Report, error) {
	report := Report{Scope: d.cfg.Scope}

	if opts.Reset {
		if err := d.cursors.DeleteCursor(ctx, d.cfg.Scope); err != nil {
			return report, fmt.Errorf("reset cursor: %w", err)
		}
		d.logger.Info("cursor reset")
	}

	state, err := d.cursors.LoadCursor(ctx, d.cfg.Scope)
	if err != nil {
		return report, fmt.Errorf("load cursor: %w", err)
	}
	if state == nil {
		return d.bootstrap(ctx, report)
	}

	report.Position = state.Position
	report.Total = state.Total
	if state.Phase() == domain.StatusComplete {
		report.Status = domain.StatusComplete
		return report, nil
	}

	return d.batch(ctx, state, report)
}

// Status reports the persisted cursor without modifying anything.
func (d *Driver) Status(ctx context.Context) (Report, error) {
	report := Report{Scope: d.cfg.Scope, Status: domain.StatusAbsent}

	state, err := d.cursors.LoadCursor(ctx, d.cfg.Scope)
	if err != nil {
		return report, fmt.Errorf("load cursor: %w", err)
	}
	if state != nil {
		report.Status = state.Phase()
		report.Position = state.Position
		report.Total = state.Total
	}

	if d.records != nil {
		n, err := d.records.CountRecords(ctx, d.cfg.Scope)
		if err != nil {
			return report, fmt.Errorf("count records: %w", err)
		}
		report.Cached = n
	}
	return report, nil
}

func (d *Driver) bootstrap(ctx context.Context, report Report) (Report, error) {
	if d.strategy == nil {
		return report, errors.New("no candidate strategy configured")
	}

	started := d.clock.Now()
	ids, genErr := d.strategy.Candidates(ctx, d.cfg.Scope)
	if genErr != nil {
		if len(ids) == 0 {
			return report, fmt.Errorf("generate candidates with %s: %w", d.strategy.Name(), genErr)
		}
		d.logger.Warn("candidate generation stopped early, keeping partial set", "strategy", d.strategy.Name(), "candidates", len(ids), "error", genErr)
		report.Failures = append(report.Failures, genErr.Error())
	}

	state := domain.NewCursor(d.cfg.Scope, ids, d.clock.Now())
	if err := d.cursors.SaveCursor(ctx, state); err != nil {
		return report, fmt.Errorf("persist cursor: %w", err)
	}

	d.logger.Info("cursor initialized", "strategy", d.strategy.Name(), "total", state.Total, "took", d.clock.Now().Sub(started))

	report.Status = domain.StatusInitialized
	report.Position = state.Position
	report.Total = state.Total
	return report, nil
}

func (d *Driver) batch(ctx context.Context, state *domain.CursorState, report Report) (Report, error) {
	ids := state.Batch(d.cfg.BatchSize)
	d.logger.Info("processing batch", "position", state.Position, "size", len(ids), "total", state.Total)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			report.Status = domain.StatusInProgress
			return report, fmt.Errorf("batch interrupted at %s: %w", id, err)
		}

		delay := d.process(ctx, id, &report)

		if i < len(ids)-1 {
			if err := d.sleep(ctx, delay); err != nil {
				report.Status = domain.StatusInProgress
				return report, fmt.Errorf("batch interrupted after %s: %w", id, err)
			}
		}
	}

	state.Advance(len(ids), d.clock.Now())
	if err := d.cursors.SaveCursor(ctx, state); err != nil {
		report.Status = domain.StatusInProgress
		return report, fmt.Errorf("persist cursor: %w", err)
	}

	report.Status = state.Phase()
	report.Position = state.Position
	report.Total = state.Total

	d.logger.Info("batch done",
		"position", state.Position,
		"total", state.Total,
		"upserted", report.Upserted,
		"skipped", report.Skipped,
		"errors", report.Errors,
	)
	return report, nil
}

// process fetches and caches one identifier and returns the delay to
// observe before the next one.
func (d *Driver) process(ctx context.Context, id string, report *Report) time.Duration {
	detail, err := d.upstream.Detail(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		report.Skipped++
		d.logger.Debug("candidate not found upstream", "id", id)
		return d.cfg.SkipDelay
	case err != nil:
		report.Errors++
		report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", id, err))
		d.logger.Warn("detail fetch failed", "id", id, "error", err)
		return d.cfg.FetchDelay
	}

	record := domain.NewCachedRecord(d.cfg.Scope, detail, d.clock.Now())
	if err := d.records.UpsertRecord(ctx, record); err != nil {
		report.Errors++
		report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", id, err))
		d.logger.Warn("cache write failed", "id", id, "error", err)
		return d.cfg.FetchDelay
	}

	report.Upserted++
	return d.cfg.FetchDelay
}

func (d *Driver) sleep(ctx context.Context, delay time.Duration) error {
	return sleep(ctx, d.clock, delay)
}

func sleep(ctx context.Context, clk clock.Clock, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(delay):
		return nil
	}
}
