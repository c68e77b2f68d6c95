package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"BillWatch/internal/domain"
)

const (
	trackedTable = "tracked_items"
	keywordTable = "tracked_keywords"
	historyTable = "status_history"
	alertTable   = "keyword_alerts"
)

// TrackedItems lists every watch entry.
func (s *SQLStore) TrackedItems(ctx context.Context) ([]domain.TrackedItem, error) {
	rows, err := s.query(ctx, s.sb.Select(
		"id", "record_id", "title", "priority", "status",
		"last_activity_date", "last_activity_label",
		"next_hearing_date", "next_hearing_type", "next_hearing_location", "checked_at",
	).From(trackedTable).OrderBy("id"), trackedTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.TrackedItem
	for rows.Next() {
		var (
			item                     domain.TrackedItem
			priority                 string
			activity, hearing, check sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &item.RecordID, &item.Title, &priority, &item.Status,
			&activity, &item.LastActivityLabel,
			&hearing, &item.NextHearingType, &item.NextHearingLocation, &check,
		); err != nil {
			return nil, &domain.StoreError{Op: "read", Table: trackedTable, Err: err}
		}
		item.Priority = domain.Priority(priority)
		item.LastActivityDate = timePtr(activity)
		item.NextHearingDate = timePtr(hearing)
		item.CheckedAt = timePtr(check)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: trackedTable, Err: err}
	}
	return items, nil
}

// SaveTrackedItem creates or replaces a watch entry.
func (s *SQLStore) SaveTrackedItem(ctx context.Context, item domain.TrackedItem) error {
	priority := item.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	return s.upsert(ctx, trackedTable, []string{"id"}, map[string]any{
		"id":                    item.ID,
		"record_id":             item.RecordID,
		"title":                 item.Title,
		"priority":              string(priority),
		"status":                item.Status,
		"last_activity_date":    nullTime(item.LastActivityDate),
		"last_activity_label":   item.LastActivityLabel,
		"next_hearing_date":     nullTime(item.NextHearingDate),
		"next_hearing_type":     item.NextHearingType,
		"next_hearing_location": item.NextHearingLocation,
		"checked_at":            nullTime(item.CheckedAt),
	}, nil)
}

// PatchTrackedItem refreshes the detector-owned fields of one entry.
func (s *SQLStore) PatchTrackedItem(ctx context.Context, id string, p domain.TrackedPatch) error {
	n, err := s.patch(ctx, trackedTable, sq.Eq{"id": id}, map[string]any{
		"status":                p.Status,
		"last_activity_date":    nullTime(p.LastActivityDate),
		"last_activity_label":   p.LastActivityLabel,
		"next_hearing_date":     nullTime(p.NextHearingDate),
		"next_hearing_type":     p.NextHearingType,
		"next_hearing_location": p.NextHearingLocation,
		"checked_at":            p.CheckedAt.UTC(),
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.StoreError{Op: "patch", Table: trackedTable, Err: fmt.Errorf("tracked item %s: %w", id, domain.ErrNotFound)}
	}
	return nil
}

// AppendStatusChange writes an immutable history entry.
func (s *SQLStore) AppendStatusChange(ctx context.Context, e domain.StatusChangeEvent) error {
	return s.upsert(ctx, historyTable, []string{"id"}, map[string]any{
		"id":              e.ID,
		"tracked_item_id": e.TrackedItemID,
		"record_id":       e.RecordID,
		"old_status":      e.OldStatus,
		"new_status":      e.NewStatus,
		"label":           e.Label,
		"changed_at":      e.ChangedAt.UTC(),
	}, map[string]string{})
}

// StatusHistory lists the history of one tracked item, oldest first.
func (s *SQLStore) StatusHistory(ctx context.Context, trackedItemID string) ([]domain.StatusChangeEvent, error) {
	rows, err := s.query(ctx, s.sb.Select(
		"id", "tracked_item_id", "record_id", "old_status", "new_status", "label", "changed_at",
	).From(historyTable).Where(sq.Eq{"tracked_item_id": trackedItemID}).OrderBy("changed_at", "id"), historyTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.StatusChangeEvent
	for rows.Next() {
		var e domain.StatusChangeEvent
		if err := rows.Scan(&e.ID, &e.TrackedItemID, &e.RecordID, &e.OldStatus, &e.NewStatus, &e.Label, &e.ChangedAt); err != nil {
			return nil, &domain.StoreError{Op: "read", Table: historyTable, Err: err}
		}
		e.ChangedAt = e.ChangedAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: historyTable, Err: err}
	}
	return events, nil
}

// Keywords lists the tracked search terms.
func (s *SQLStore) Keywords(ctx context.Context) ([]domain.Keyword, error) {
	rows, err := s.query(ctx, s.sb.Select("id", "term").From(keywordTable).OrderBy("term"), keywordTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Keyword
	for rows.Next() {
		var kw domain.Keyword
		if err := rows.Scan(&kw.ID, &kw.Term); err != nil {
			return nil, &domain.StoreError{Op: "read", Table: keywordTable, Err: err}
		}
		out = append(out, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: keywordTable, Err: err}
	}
	return out, nil
}

// SaveKeyword adds a term; an existing term is left as is.
func (s *SQLStore) SaveKeyword(ctx context.Context, kw domain.Keyword) error {
	return s.upsert(ctx, keywordTable, []string{"term"}, map[string]any{
		"id":   kw.ID,
		"term": kw.Term,
	}, map[string]string{})
}

// AlertLedger loads every (record, keyword) pair already alerted.
func (s *SQLStore) AlertLedger(ctx context.Context) (map[domain.AlertKey]bool, error) {
	rows, err := s.query(ctx, s.sb.Select("record_id", "keyword").From(alertTable), alertTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ledger := make(map[domain.AlertKey]bool)
	for rows.Next() {
		var key domain.AlertKey
		if err := rows.Scan(&key.RecordID, &key.Keyword); err != nil {
			return nil, &domain.StoreError{Op: "read", Table: alertTable, Err: err}
		}
		ledger[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: alertTable, Err: err}
	}
	return ledger, nil
}

// AppendAlert records that key has been alerted.
func (s *SQLStore) AppendAlert(ctx context.Context, key domain.AlertKey, at time.Time) error {
	return s.upsert(ctx, alertTable, []string{"record_id", "keyword"}, map[string]any{
		"record_id":  key.RecordID,
		"keyword":    key.Keyword,
		"alerted_at": at.UTC(),
	}, map[string]string{})
}
