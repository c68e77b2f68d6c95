package usecase

import (
	"context"
	"time"

	"BillWatch/internal/domain"
	"BillWatch/internal/ports"
)

// Scheduler wires the ticker driver with the batch driver.
type Scheduler struct {
	driver ports.Scheduler
	steps  *Driver
}

// NewScheduler returns a helper that steps the cache until completion.
func NewScheduler(driver ports.Scheduler, steps *Driver) *Scheduler {
	return &Scheduler{driver: driver, steps: steps}
}

// RunUntilComplete invokes Step once per tick. Only the first step honours
// reset. observe, when set, receives every report.
func (s *Scheduler) RunUntilComplete(ctx context.Context, reset bool, observe func(Report, error)) error {
	if s.driver == nil || s.steps == nil {
		return nil
	}

	first := true
	job := func(ctx context.Context, _ time.Time) (bool, error) {
		report, err := s.steps.Step(ctx, StepOptions{Reset: reset && first})
		first = false
		if observe != nil {
			observe(report, err)
		}
		if err != nil {
			return false, err
		}
		return report.Status == domain.StatusComplete, nil
	}

	return s.driver.Run(ctx, job)
}
