package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"BillWatch/internal/activity"
	"BillWatch/internal/domain"
	"BillWatch/internal/ports"
)

// DetectorConfig is fixed for the lifetime of a Detector.
type DetectorConfig struct {
	Scope            string
	SearchLimit      int
	FetchDelay       time.Duration
	NotifyPriorities []domain.Priority
	Rules            []activity.Rule
}

// DetectorDeps wires the adapters the change detector works against.
type DetectorDeps struct {
	Upstream ports.Upstream
	Records  ports.RecordRepository
	Tracking ports.TrackingRepository
	Notifier ports.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
	NewID    func() string
}

// DetectResult summarises one detector pass.
type DetectResult struct {
	Checked           int                        `json:"checked"`
	StatusChanges     []domain.StatusChangeEvent `json:"statusChanges"`
	NewKeywordMatches []domain.KeywordMatch      `json:"newKeywordMatches"`
	Errors            []string                   `json:"errors"`
}

// Detector refreshes tracked items and surfaces new keyword matches.
type Detector struct {
	cfg      DetectorConfig
	notify   map[domain.Priority]bool
	upstream ports.Upstream
	records  ports.RecordRepository
	tracking ports.TrackingRepository
	notifier ports.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	newID    func() string
}

// NewDetector constructs the change detector.
func NewDetector(cfg DetectorConfig, deps DetectorDeps) *Detector {
	if cfg.Rules == nil {
		cfg.Rules = activity.DefaultRules()
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 50
	}
	notify := make(map[domain.Priority]bool, len(cfg.NotifyPriorities))
	for _, p := range cfg.NotifyPriorities {
		notify[p] = true
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Detector{
		cfg:      cfg,
		notify:   notify,
		upstream: deps.Upstream,
		records:  deps.Records,
		tracking: deps.Tracking,
		notifier: deps.Notifier,
		clock:    clk,
		logger:   logger.With("component", "detector"),
		newID:    newID,
	}
}

// Run performs one detector pass. Only a failure to list the tracked items
// is returned as an error; everything else is collected in the result.
func (d *Detector) Run(ctx context.Context) (DetectResult, error) {
	result := DetectResult{
		StatusChanges:     []domain.StatusChangeEvent{},
		NewKeywordMatches: []domain.KeywordMatch{},
		Errors:            []string{},
	}

	items, err := d.tracking.TrackedItems(ctx)
	if err != nil {
		return result, fmt.Errorf("load tracked items: %w", err)
	}

	tracked := make(map[string]bool, len(items))
	first := true
	for _, item := range items {
		if item.RecordID == "" {
			continue
		}
		tracked[item.RecordID] = true

		if !first {
			if err := sleep(ctx, d.clock, d.cfg.FetchDelay); err != nil {
				result.Errors = append(result.Errors, err.Error())
				return result, nil
			}
		}
		first = false

		result.Checked++
		d.checkItem(ctx, item, &result)
	}

	d.matchKeywords(ctx, tracked, &result)

	d.logger.Info("detector pass done",
		"checked", result.Checked,
		"status_changes", len(result.StatusChanges),
		"keyword_matches", len(result.NewKeywordMatches),
		"errors", len(result.Errors),
	)
	return result, nil
}

func (d *Detector) checkItem(ctx context.Context, item domain.TrackedItem, result *DetectResult) {
	detail, err := d.upstream.Detail(ctx, item.RecordID)
	if err != nil {
		d.logger.Warn("detail fetch failed", "record", item.RecordID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.RecordID, err))
		return
	}

	now := d.clock.Now()
	snapshot := activity.Extract(detail.Raw, now, d.cfg.Rules)

	oldStatus, newStatus := item.Status, detail.Status
	if oldStatus != "" && newStatus != "" && oldStatus != newStatus {
		d.recordStatusChange(ctx, item, detail, snapshot, now, result)
	}

	patch := domain.TrackedPatch{
		Status:              newStatus,
		LastActivityDate:    item.LastActivityDate,
		LastActivityLabel:   item.LastActivityLabel,
		NextHearingDate:     nil,
		NextHearingType:     "",
		NextHearingLocation: "",
		CheckedAt:           now,
	}
	if patch.Status == "" {
		patch.Status = oldStatus
	}
	if latest := snapshot.LatestActivity; latest != nil {
		date := latest.Date
		patch.LastActivityDate = &date
		patch.LastActivityLabel = latest.Label
	}
	if next := snapshot.NextHearing; next != nil {
		date := next.Date
		patch.NextHearingDate = &date
		patch.NextHearingType = next.Type
		patch.NextHearingLocation = next.Location
	}
	if err := d.tracking.PatchTrackedItem(ctx, item.ID, patch); err != nil {
		d.logger.Warn("tracked item patch failed", "item", item.ID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.RecordID, err))
	}

	if d.records != nil {
		if err := d.records.UpsertRecord(ctx, domain.NewCachedRecord(d.cfg.Scope, detail, now)); err != nil {
			d.logger.Warn("cache write failed", "record", item.RecordID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.RecordID, err))
		}
	}
}

func (d *Detector) recordStatusChange(ctx context.Context, item domain.TrackedItem, detail domain.RecordDetail, snapshot activity.Snapshot, now time.Time, result *DetectResult) {
	label := detail.Status
	if snapshot.LatestActivity != nil && snapshot.LatestActivity.Label != "" {
		label = snapshot.LatestActivity.Label
	}
	event := domain.StatusChangeEvent{
		ID:            d.newID(),
		TrackedItemID: item.ID,
		RecordID:      item.RecordID,
		OldStatus:     item.Status,
		NewStatus:     detail.Status,
		Label:         label,
		ChangedAt:     now,
	}
	if err := d.tracking.AppendStatusChange(ctx, event); err != nil {
		d.logger.Warn("status history write failed", "record", item.RecordID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.RecordID, err))
		return
	}
	result.StatusChanges = append(result.StatusChanges, event)
	d.logger.Info("status changed", "record", item.RecordID, "old", event.OldStatus, "new", event.NewStatus)

	if !d.notify[item.Priority] {
		return
	}
	title := item.Title
	if title == "" {
		title = detail.Title
	}
	d.send(ctx, domain.Notification{
		Kind:     domain.NotifyStatusChange,
		RecordID: item.RecordID,
		Subject:  fmt.Sprintf("%s: status changed", item.RecordID),
		Text:     fmt.Sprintf("%s\n%s -> %s (%s)", title, event.OldStatus, event.NewStatus, label),
	}, result)
}

func (d *Detector) matchKeywords(ctx context.Context, tracked map[string]bool, result *DetectResult) {
	keywords, err := d.tracking.Keywords(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("load keywords: %v", err))
		return
	}
	if len(keywords) == 0 {
		return
	}

	ledger, err := d.tracking.AlertLedger(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("load alert ledger: %v", err))
		return
	}

	for _, kw := range keywords {
		hits, err := d.upstream.Search(ctx, domain.SearchQuery{
			Keyword: kw.Term,
			ScopeID: d.cfg.Scope,
			Limit:   d.cfg.SearchLimit,
		})
		if err != nil {
			d.logger.Warn("keyword search failed", "keyword", kw.Term, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("keyword %q: %v", kw.Term, err))
			continue
		}

		for _, hit := range hits {
			key := domain.AlertKey{RecordID: hit.ID, Keyword: kw.Term}
			if hit.ID == "" || tracked[hit.ID] || ledger[key] {
				continue
			}

			now := d.clock.Now()
			if err := d.tracking.AppendAlert(ctx, key, now); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("keyword %q record %s: %v", kw.Term, hit.ID, err))
				continue
			}
			ledger[key] = true

			match := domain.KeywordMatch{
				RecordID:  hit.ID,
				Keyword:   kw.Term,
				Title:     hit.Title,
				Status:    hit.Status,
				MatchedAt: now,
			}
			result.NewKeywordMatches = append(result.NewKeywordMatches, match)
			d.send(ctx, domain.Notification{
				Kind:     domain.NotifyKeywordMatch,
				RecordID: hit.ID,
				Subject:  fmt.Sprintf("New match for %q", kw.Term),
				Text:     fmt.Sprintf("%s %s [%s]", hit.ID, hit.Title, hit.Status),
			}, result)
		}
	}
}

func (d *Detector) send(ctx context.Context, n domain.Notification, result *DetectResult) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.logger.Warn("notification failed", "kind", n.Kind, "record", n.RecordID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("notify %s %s: %v", n.Kind, n.RecordID, err))
	}
}
