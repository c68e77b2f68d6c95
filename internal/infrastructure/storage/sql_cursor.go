package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"BillWatch/internal/domain"
)

const cursorTable = "cursor_state"

// cursorMerge keeps position and completed monotonic when a stale writer
// replays an older cursor. The candidate set of an existing row is kept.
var cursorMerge = map[string]string{
	"position":   "CASE WHEN excluded.position > cursor_state.position THEN excluded.position ELSE cursor_state.position END",
	"completed":  "CASE WHEN excluded.position > cursor_state.position THEN excluded.completed ELSE cursor_state.completed END",
	"updated_at": "excluded.updated_at",
}

// LoadCursor returns the cursor for scope or nil when absent.
func (s *SQLStore) LoadCursor(ctx context.Context, scope string) (*domain.CursorState, error) {
	b := s.sb.Select("scope_key", "candidate_ids", "position", "total", "completed", "started_at", "updated_at").
		From(cursorTable).
		Where(sq.Eq{"scope_key": scope})

	query, args, err := b.ToSql()
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: cursorTable, Err: err}
	}

	var (
		state domain.CursorState
		ids   string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&state.ScopeKey, &ids, &state.Position, &state.Total, &state.Completed, &state.StartedAt, &state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: cursorTable, Err: err}
	}
	if err := json.Unmarshal([]byte(ids), &state.CandidateIDs); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: cursorTable, Err: err}
	}
	state.StartedAt = state.StartedAt.UTC()
	state.UpdatedAt = state.UpdatedAt.UTC()
	return &state, nil
}

// SaveCursor creates the cursor row or advances an existing one.
func (s *SQLStore) SaveCursor(ctx context.Context, state *domain.CursorState) error {
	ids, err := json.Marshal(nonNil(state.CandidateIDs))
	if err != nil {
		return &domain.StoreError{Op: "upsert", Table: cursorTable, Err: err}
	}
	return s.upsert(ctx, cursorTable, []string{"scope_key"}, map[string]any{
		"scope_key":     state.ScopeKey,
		"candidate_ids": string(ids),
		"position":      state.Position,
		"total":         state.Total,
		"completed":     state.Completed,
		"started_at":    state.StartedAt.UTC(),
		"updated_at":    state.UpdatedAt.UTC(),
	}, cursorMerge)
}

// DeleteCursor removes the scope's cursor; cached records are untouched.
func (s *SQLStore) DeleteCursor(ctx context.Context, scope string) error {
	query, args, err := s.sb.Delete(cursorTable).Where(sq.Eq{"scope_key": scope}).ToSql()
	if err != nil {
		return &domain.StoreError{Op: "delete", Table: cursorTable, Err: err}
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &domain.StoreError{Op: "delete", Table: cursorTable, Err: err}
	}
	return nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
