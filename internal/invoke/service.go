package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"BillWatch/internal/domain"
	"BillWatch/internal/ports"
	"BillWatch/internal/usecase"
)

const (
	// StatusRejected is reported when the credentials do not match.
	StatusRejected domain.RunStatus = "rejected"
	// StatusFailed is reported when the invocation could not run at all.
	StatusFailed domain.RunStatus = "failed"
	// StatusOK marks a finished detector pass.
	StatusOK domain.RunStatus = "ok"
)

// Metrics receives one observation per invocation.
type Metrics interface {
	ObserveInvocation(operation, outcome string, took time.Duration)
	ObserveCursor(scope string, position, total int)
	ObserveBatch(upserted, skipped, errors int)
	ObserveDetect(checked, changes, matches, errors int)
}

// StepResponse is returned by every cache step invocation.
type StepResponse struct {
	usecase.Report
	Error string `json:"error,omitempty"`
}

// DetectResponse is returned by every detector invocation.
type DetectResponse struct {
	Status domain.RunStatus `json:"status"`
	usecase.DetectResult
}

// Deps wires the use cases behind the invocation surface.
type Deps struct {
	Auth     *Authorizer
	Driver   *usecase.Driver
	Loop     *usecase.Scheduler
	Detector *usecase.Detector
	Upstream ports.Upstream
	Tracking ports.TrackingRepository
	Metrics  Metrics
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Service is the guarded entry point for every operation. Nothing is
// thrown past it: failures are folded into the responses.
type Service struct {
	auth     *Authorizer
	driver   *usecase.Driver
	loop     *usecase.Scheduler
	detector *usecase.Detector
	upstream ports.Upstream
	tracking ports.TrackingRepository
	metrics  Metrics
	clock    clock.Clock
	logger   *slog.Logger
}

// NewService wires deps, defaulting the clock and logger when unset.
func NewService(deps Deps) *Service {
	clk := deps.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		auth:     deps.Auth,
		driver:   deps.Driver,
		loop:     deps.Loop,
		detector: deps.Detector,
		upstream: deps.Upstream,
		tracking: deps.Tracking,
		metrics:  deps.Metrics,
		clock:    clk,
		logger:   logger.With("component", "invoke"),
	}
}

// CacheStep runs one batch driver invocation.
func (s *Service) CacheStep(ctx context.Context, creds Credentials, reset bool) StepResponse {
	started := s.clock.Now()
	if err := s.authorize(creds); err != nil {
		s.observe("cache_step", string(StatusRejected), started)
		return StepResponse{Report: usecase.Report{Status: StatusRejected}, Error: err.Error()}
	}

	report, err := s.driver.Step(ctx, usecase.StepOptions{Reset: reset})
	resp := s.stepResponse(report, err)
	s.observeStep(resp, started)
	return resp
}

// CacheRun steps the cache on the scheduler loop until it completes.
// observe receives every step response.
func (s *Service) CacheRun(ctx context.Context, creds Credentials, reset bool, observe func(StepResponse)) error {
	if err := s.authorize(creds); err != nil {
		s.observe("cache_run", string(StatusRejected), s.clock.Now())
		return err
	}

	started := s.clock.Now()
	stepStarted := started
	err := s.loop.RunUntilComplete(ctx, reset, func(report usecase.Report, err error) {
		resp := s.stepResponse(report, err)
		s.observeStep(resp, stepStarted)
		stepStarted = s.clock.Now()
		if observe != nil {
			observe(resp)
		}
	})
	outcome := "complete"
	if err != nil {
		outcome = string(StatusFailed)
	}
	s.observe("cache_run", outcome, started)
	return err
}

// CacheStatus reports the cursor without advancing it.
func (s *Service) CacheStatus(ctx context.Context, creds Credentials) StepResponse {
	if err := s.authorize(creds); err != nil {
		return StepResponse{Report: usecase.Report{Status: StatusRejected}, Error: err.Error()}
	}
	report, err := s.driver.Status(ctx)
	if err != nil {
		return StepResponse{Report: report, Error: err.Error()}
	}
	return StepResponse{Report: report}
}

// Detect runs one change detector pass.
func (s *Service) Detect(ctx context.Context, creds Credentials) DetectResponse {
	started := s.clock.Now()
	if err := s.authorize(creds); err != nil {
		s.observe("detect", string(StatusRejected), started)
		return DetectResponse{Status: StatusRejected, DetectResult: usecase.DetectResult{
			StatusChanges:     []domain.StatusChangeEvent{},
			NewKeywordMatches: []domain.KeywordMatch{},
			Errors:            []string{err.Error()},
		}}
	}

	result, err := s.detector.Run(ctx)
	resp := DetectResponse{Status: StatusOK, DetectResult: result}
	if err != nil {
		resp.Status = StatusFailed
		resp.Errors = append(resp.Errors, err.Error())
	}

	if s.metrics != nil {
		s.metrics.ObserveDetect(resp.Checked, len(resp.StatusChanges), len(resp.NewKeywordMatches), len(resp.Errors))
	}
	s.observe("detect", string(resp.Status), started)
	return resp
}

// TrackRecord adds recordID to the watch list, seeding title and status
// from the upstream detail when it can be fetched.
func (s *Service) TrackRecord(ctx context.Context, creds Credentials, recordID string, priority domain.Priority) (domain.TrackedItem, error) {
	if err := s.authorize(creds); err != nil {
		return domain.TrackedItem{}, err
	}
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return domain.TrackedItem{}, errors.New("record id is required")
	}

	item := domain.TrackedItem{ID: uuid.NewString(), RecordID: recordID, Priority: priority}
	detail, err := s.upstream.Detail(ctx, recordID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.TrackedItem{}, fmt.Errorf("record %s: %w", recordID, err)
	case err != nil:
		s.logger.Warn("tracking without upstream snapshot", "record", recordID, "error", err)
	default:
		item.Title = detail.Title
		item.Status = detail.Status
	}

	if err := s.tracking.SaveTrackedItem(ctx, item); err != nil {
		return domain.TrackedItem{}, fmt.Errorf("save tracked item: %w", err)
	}
	return item, nil
}

// AddKeyword starts watching search results for term.
func (s *Service) AddKeyword(ctx context.Context, creds Credentials, term string) (domain.Keyword, error) {
	if err := s.authorize(creds); err != nil {
		return domain.Keyword{}, err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return domain.Keyword{}, errors.New("keyword is required")
	}
	kw := domain.Keyword{ID: uuid.NewString(), Term: term}
	if err := s.tracking.SaveKeyword(ctx, kw); err != nil {
		return domain.Keyword{}, fmt.Errorf("save keyword: %w", err)
	}
	return kw, nil
}

// TrackHistory lists the status changes recorded for one watch entry.
func (s *Service) TrackHistory(ctx context.Context, creds Credentials, trackedItemID string) ([]domain.StatusChangeEvent, error) {
	if err := s.authorize(creds); err != nil {
		return nil, err
	}
	trackedItemID = strings.TrimSpace(trackedItemID)
	if trackedItemID == "" {
		return nil, errors.New("tracked item id is required")
	}
	events, err := s.tracking.StatusHistory(ctx, trackedItemID)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	return events, nil
}

func (s *Service) authorize(creds Credentials) error {
	if s.auth == nil {
		return domain.ErrUnauthorized
	}
	if err := s.auth.Authorize(creds); err != nil {
		s.logger.Warn("invocation rejected")
		return err
	}
	return nil
}

func (s *Service) stepResponse(report usecase.Report, err error) StepResponse {
	resp := StepResponse{Report: report}
	if err != nil {
		s.logger.Error("cache step failed", "scope", report.Scope, "error", err)
		resp.Status = StatusFailed
		resp.Error = err.Error()
	}
	return resp
}

func (s *Service) observeStep(resp StepResponse, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveBatch(resp.Upserted, resp.Skipped, resp.Errors)
		if resp.Status != StatusFailed {
			s.metrics.ObserveCursor(resp.Scope, resp.Position, resp.Total)
		}
	}
	s.observe("cache_step", string(resp.Status), started)
}

func (s *Service) observe(operation, outcome string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveInvocation(operation, outcome, s.clock.Now().Sub(started))
}
