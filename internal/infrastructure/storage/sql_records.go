package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"BillWatch/internal/domain"
)

const recordTable = "cached_records"

var recordColumns = []string{
	"id", "scope_key", "title", "category", "status", "sponsor", "cosponsors",
	"committees", "introduced_at", "detail", "link", "cached_at",
}

// UpsertRecord writes the record, replacing any previous copy.
func (s *SQLStore) UpsertRecord(ctx context.Context, r domain.CachedRecord) error {
	cosponsors, err := json.Marshal(nonNil(r.Cosponsors))
	if err != nil {
		return &domain.StoreError{Op: "upsert", Table: recordTable, Err: err}
	}
	committees, err := json.Marshal(nonNil(r.Committees))
	if err != nil {
		return &domain.StoreError{Op: "upsert", Table: recordTable, Err: err}
	}
	detail := string(r.Detail)
	if detail == "" {
		detail = "{}"
	}

	return s.upsert(ctx, recordTable, []string{"id"}, map[string]any{
		"id":            r.ID,
		"scope_key":     r.ScopeKey,
		"title":         r.Title,
		"category":      r.Category,
		"status":        r.Status,
		"sponsor":       r.Sponsor,
		"cosponsors":    string(cosponsors),
		"committees":    string(committees),
		"introduced_at": nullTime(r.IntroducedAt),
		"detail":        detail,
		"link":          r.Link,
		"cached_at":     r.CachedAt.UTC(),
	}, nil)
}

// Record returns the cached record or nil when it was never cached.
func (s *SQLStore) Record(ctx context.Context, id string) (*domain.CachedRecord, error) {
	query, args, err := s.sb.Select(recordColumns...).From(recordTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: recordTable, Err: err}
	}

	var (
		r                              domain.CachedRecord
		cosponsors, committees, detail string
		introduced                     sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&r.ID, &r.ScopeKey, &r.Title, &r.Category, &r.Status, &r.Sponsor, &cosponsors,
		&committees, &introduced, &detail, &r.Link, &r.CachedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: recordTable, Err: err}
	}

	if err := json.Unmarshal([]byte(cosponsors), &r.Cosponsors); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: recordTable, Err: err}
	}
	if err := json.Unmarshal([]byte(committees), &r.Committees); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: recordTable, Err: err}
	}
	r.Detail = json.RawMessage(detail)
	r.IntroducedAt = timePtr(introduced)
	r.CachedAt = r.CachedAt.UTC()
	return &r, nil
}

// CountRecords reports how many records are cached for scope.
func (s *SQLStore) CountRecords(ctx context.Context, scope string) (int, error) {
	rows, err := s.query(ctx, s.sb.Select("COUNT(*)").From(recordTable).Where(sq.Eq{"scope_key": scope}), recordTable)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, &domain.StoreError{Op: "read", Table: recordTable, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, &domain.StoreError{Op: "read", Table: recordTable, Err: err}
	}
	return n, nil
}
