package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"

	"BillWatch/internal/domain"
)

func newTestDetector(store *memStore, up *fakeUpstream, notifier *recordingNotifier, now time.Time) *Detector {
	seq := 0
	return NewDetector(DetectorConfig{
		Scope:            "21",
		NotifyPriorities: []domain.Priority{domain.PriorityHigh, domain.PriorityUrgent},
	}, DetectorDeps{
		Upstream: up,
		Records:  store,
		Tracking: store,
		Notifier: notifier,
		Clock:    testclock.NewClock(now),
		NewID: func() string {
			seq++
			return fmt.Sprintf("evt-%d", seq)
		},
	})
}

func TestStatusTransitionAppendsOneEvent(t *testing.T) {
	store := newMemStore()
	store.items["t1"] = domain.TrackedItem{ID: "t1", RecordID: "Int 0042", Title: "Street trees", Priority: domain.PriorityHigh, Status: "Introduced"}
	up := &fakeUpstream{details: map[string]domain.RecordDetail{
		"Int 0042": {ID: "Int 0042", Status: "Committee Referral"},
	}}
	notifier := &recordingNotifier{}
	detector := newTestDetector(store, up, notifier, t0)
	ctx := context.Background()

	result, err := detector.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Empty(t, result.Errors)
	require.Len(t, result.StatusChanges, 1)
	require.Equal(t, "Introduced", result.StatusChanges[0].OldStatus)
	require.Equal(t, "Committee Referral", result.StatusChanges[0].NewStatus)
	require.Len(t, store.history, 1)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, domain.NotifyStatusChange, notifier.sent[0].Kind)
	require.Equal(t, "Committee Referral", store.items["t1"].Status)
	require.Contains(t, store.records, "Int 0042")

	result, err = detector.Run(ctx)
	require.NoError(t, err)
	require.Empty(t, result.StatusChanges)
	require.Len(t, store.history, 1)
}

func TestNormalPriorityChangeIsRecordedButNotNotified(t *testing.T) {
	store := newMemStore()
	store.items["t1"] = domain.TrackedItem{ID: "t1", RecordID: "Int 0007", Priority: domain.PriorityNormal, Status: "Introduced"}
	up := &fakeUpstream{details: map[string]domain.RecordDetail{
		"Int 0007": {ID: "Int 0007", Status: "Adopted"},
	}}
	notifier := &recordingNotifier{}

	result, err := newTestDetector(store, up, notifier, t0).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.StatusChanges, 1)
	require.Empty(t, notifier.sent)
}

func TestEmptyStatusNeverCountsAsChange(t *testing.T) {
	store := newMemStore()
	store.items["fresh"] = domain.TrackedItem{ID: "fresh", RecordID: "Int 0001", Priority: domain.PriorityUrgent}
	store.items["blank"] = domain.TrackedItem{ID: "blank", RecordID: "Int 0002", Priority: domain.PriorityUrgent, Status: "Introduced"}
	up := &fakeUpstream{details: map[string]domain.RecordDetail{
		"Int 0001": {ID: "Int 0001", Status: "Introduced"},
		"Int 0002": {ID: "Int 0002"},
	}}

	result, err := newTestDetector(store, up, &recordingNotifier{}, t0).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Checked)
	require.Empty(t, result.StatusChanges)
	require.Equal(t, "Introduced", store.items["fresh"].Status)
	require.Equal(t, "Introduced", store.items["blank"].Status)
}

func TestPatchCarriesNextHearingAndLatestActivity(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := newMemStore()
	store.items["t1"] = domain.TrackedItem{ID: "t1", RecordID: "Int 0100", Status: "Committee"}
	up := &fakeUpstream{details: map[string]domain.RecordDetail{
		"Int 0100": {ID: "Int 0100", Status: "Committee", Raw: map[string]any{
			"hearings": []any{
				map[string]any{"date": "2024-01-01", "type": "Public Hearing"},
				map[string]any{"date": "2025-06-01", "type": "Stated Meeting"},
				map[string]any{"date": "2025-03-01", "type": "Committee Vote", "location": "Council Chambers"},
			},
		}},
	}}

	_, err := newTestDetector(store, up, &recordingNotifier{}, now).Run(context.Background())
	require.NoError(t, err)

	item := store.items["t1"]
	require.NotNil(t, item.NextHearingDate)
	require.True(t, item.NextHearingDate.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "Committee Vote", item.NextHearingType)
	require.Equal(t, "Council Chambers", item.NextHearingLocation)
	require.NotNil(t, item.LastActivityDate)
	require.True(t, item.LastActivityDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, item.CheckedAt)
	require.True(t, item.CheckedAt.Equal(now))
}

func TestFetchFailureIsCollected(t *testing.T) {
	store := newMemStore()
	store.items["t1"] = domain.TrackedItem{ID: "t1", RecordID: "Int 0500", Status: "Introduced"}
	store.items["t2"] = domain.TrackedItem{ID: "t2", RecordID: "Int 0501", Status: "Introduced"}
	up := &fakeUpstream{
		details: map[string]domain.RecordDetail{"Int 0501": {ID: "Int 0501", Status: "Adopted"}},
		fail:    map[string]error{"Int 0500": &domain.UpstreamError{Endpoint: "/records/Int 0500", StatusCode: 500}},
	}

	result, err := newTestDetector(store, up, &recordingNotifier{}, t0).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Checked)
	require.Len(t, result.Errors, 1)
	require.Len(t, result.StatusChanges, 1)
	require.Nil(t, store.items["t1"].CheckedAt)
}

func TestKeywordMatchesAreDeduplicatedByLedger(t *testing.T) {
	store := newMemStore()
	store.items["t1"] = domain.TrackedItem{ID: "t1", RecordID: "Int 0001", Status: "Introduced"}
	store.keywords = []domain.Keyword{{ID: "k1", Term: "zoning"}}
	store.ledger[domain.AlertKey{RecordID: "Int 0002", Keyword: "zoning"}] = true
	up := &fakeUpstream{
		details: map[string]domain.RecordDetail{"Int 0001": {ID: "Int 0001", Status: "Introduced"}},
		hits: map[string][]domain.SearchHit{"zoning": {
			{ID: "Int 0001", Title: "tracked already"},
			{ID: "Int 0002", Title: "alerted before"},
			{ID: "Int 0003", Title: "Zoning text amendment", Status: "Introduced"},
		}},
	}
	notifier := &recordingNotifier{}
	detector := newTestDetector(store, up, notifier, t0)
	ctx := context.Background()

	result, err := detector.Run(ctx)
	require.NoError(t, err)
	require.Len(t, result.NewKeywordMatches, 1)
	require.Equal(t, "Int 0003", result.NewKeywordMatches[0].RecordID)
	require.True(t, store.ledger[domain.AlertKey{RecordID: "Int 0003", Keyword: "zoning"}])
	require.Len(t, notifier.sent, 1)
	require.Equal(t, domain.NotifyKeywordMatch, notifier.sent[0].Kind)

	result, err = detector.Run(ctx)
	require.NoError(t, err)
	require.Empty(t, result.NewKeywordMatches)
	require.Len(t, notifier.sent, 1)
}
