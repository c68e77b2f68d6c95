package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"BillWatch/internal/config"
	"BillWatch/internal/domain"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "billwatch.db")
	store, err := OpenSQL(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	missing, err := store.LoadCursor(ctx, "21")
	require.NoError(t, err)
	require.Nil(t, missing)

	state := domain.NewCursor("21", []string{"Int 0001", "Int 0002", "Res 0001"}, now)
	require.NoError(t, store.SaveCursor(ctx, state))

	loaded, err := store.LoadCursor(ctx, "21")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, []string{"Int 0001", "Int 0002", "Res 0001"}, loaded.CandidateIDs)
	require.Equal(t, 0, loaded.Position)
	require.Equal(t, 3, loaded.Total)
	require.False(t, loaded.Completed)
	require.True(t, now.Equal(loaded.StartedAt))

	loaded.Advance(3, now.Add(time.Minute))
	require.NoError(t, store.SaveCursor(ctx, loaded))

	done, err := store.LoadCursor(ctx, "21")
	require.NoError(t, err)
	require.Equal(t, 3, done.Position)
	require.True(t, done.Completed)
}

func TestSaveCursorNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ids := []string{"a", "b", "c", "d"}
	ahead := domain.NewCursor("21", ids, now)
	ahead.Advance(3, now)
	require.NoError(t, store.SaveCursor(ctx, ahead))

	stale := domain.NewCursor("21", ids, now)
	stale.Advance(1, now)
	require.NoError(t, store.SaveCursor(ctx, stale))

	loaded, err := store.LoadCursor(ctx, "21")
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Position)
}

func TestDeleteCursorKeepsRecords(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveCursor(ctx, domain.NewCursor("21", []string{"Int 0001"}, now)))
	require.NoError(t, store.UpsertRecord(ctx, domain.CachedRecord{ID: "Int 0001", ScopeKey: "21", Title: "Parks", CachedAt: now}))

	require.NoError(t, store.DeleteCursor(ctx, "21"))

	cursor, err := store.LoadCursor(ctx, "21")
	require.NoError(t, err)
	require.Nil(t, cursor)

	n, err := store.CountRecords(ctx, "21")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestUpsertRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	introduced := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	rec := domain.CachedRecord{
		ID:           "Int 0042",
		ScopeKey:     "21",
		Title:        "Street trees",
		Category:     "Introduction",
		Status:       "Committee",
		Sponsor:      "Jane Doe",
		Cosponsors:   []string{"John Roe"},
		Committees:   []string{"Parks"},
		IntroducedAt: &introduced,
		Detail:       json.RawMessage(`{"id":"Int 0042"}`),
		CachedAt:     now,
	}
	require.NoError(t, store.UpsertRecord(ctx, rec))
	require.NoError(t, store.UpsertRecord(ctx, rec))

	rec.Status = "Adopted"
	require.NoError(t, store.UpsertRecord(ctx, rec))

	n, err := store.CountRecords(ctx, "21")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := store.Record(ctx, "Int 0042")
	require.NoError(t, err)
	require.Equal(t, "Adopted", got.Status)
	require.Equal(t, []string{"John Roe"}, got.Cosponsors)
	require.Equal(t, []string{"Parks"}, got.Committees)
	require.NotNil(t, got.IntroducedAt)
	require.True(t, introduced.Equal(*got.IntroducedAt))
	require.JSONEq(t, `{"id":"Int 0042"}`, string(got.Detail))

	missing, err := store.Record(ctx, "Int 9999")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestTrackedItemPatchAndHistory(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hearing := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveTrackedItem(ctx, domain.TrackedItem{ID: "t1", RecordID: "Int 0042", Status: "Introduced"}))

	require.NoError(t, store.PatchTrackedItem(ctx, "t1", domain.TrackedPatch{
		Status:          "Committee Referral",
		NextHearingDate: &hearing,
		NextHearingType: "Hearing",
		CheckedAt:       now,
	}))

	items, err := store.TrackedItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, domain.PriorityNormal, items[0].Priority)
	require.Equal(t, "Committee Referral", items[0].Status)
	require.NotNil(t, items[0].NextHearingDate)
	require.True(t, hearing.Equal(*items[0].NextHearingDate))
	require.Nil(t, items[0].LastActivityDate)
	require.NotNil(t, items[0].CheckedAt)

	err = store.PatchTrackedItem(ctx, "missing", domain.TrackedPatch{CheckedAt: now})
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrNotFound))

	event := domain.StatusChangeEvent{
		ID: "e1", TrackedItemID: "t1", RecordID: "Int 0042",
		OldStatus: "Introduced", NewStatus: "Committee Referral", Label: "Int 0042", ChangedAt: now,
	}
	require.NoError(t, store.AppendStatusChange(ctx, event))
	event.NewStatus = "Overwritten"
	require.NoError(t, store.AppendStatusChange(ctx, event))

	history, err := store.StatusHistory(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "Committee Referral", history[0].NewStatus)
}

func TestKeywordsAndAlertLedger(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveKeyword(ctx, domain.Keyword{ID: "k1", Term: "zoning"}))
	require.NoError(t, store.SaveKeyword(ctx, domain.Keyword{ID: "k2", Term: "zoning"}))
	require.NoError(t, store.SaveKeyword(ctx, domain.Keyword{ID: "k3", Term: "bicycle"}))

	keywords, err := store.Keywords(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Keyword{{ID: "k3", Term: "bicycle"}, {ID: "k1", Term: "zoning"}}, keywords)

	key := domain.AlertKey{RecordID: "Int 0042", Keyword: "zoning"}
	require.NoError(t, store.AppendAlert(ctx, key, now))
	require.NoError(t, store.AppendAlert(ctx, key, now.Add(time.Hour)))

	ledger, err := store.AlertLedger(ctx)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	require.True(t, ledger[key])
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "oracle"})
	require.Error(t, err)
}
