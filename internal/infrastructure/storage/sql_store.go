package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"BillWatch/internal/domain"
	"BillWatch/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLStore persists cursors, cached records and tracking data in Postgres
// or SQLite. Queries are built with squirrel so both dialects share them.
type SQLStore struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	driver string
}

var _ ports.Store = (*SQLStore)(nil)

// OpenSQL connects to dsn with driver and applies the schema.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	store, err := NewSQLStore(ctx, db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wires an existing sql.DB and applies the schema idempotently.
func NewSQLStore(ctx context.Context, db *sql.DB, driver string) (*SQLStore, error) {
	var format sq.PlaceholderFormat = sq.Dollar
	if driver == DriverSQLite {
		format = sq.Question
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				return nil, fmt.Errorf("apply %q: %w", pragma, err)
			}
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLStore{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
		driver: driver,
	}, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// upsert inserts row and merges on conflict with the conflict columns.
// With set == nil every other column takes the incoming value; an empty
// non-nil set turns the statement into an insert-if-absent.
func (s *SQLStore) upsert(ctx context.Context, table string, conflict []string, row map[string]any, set map[string]string) error {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	values := make([]any, 0, len(columns))
	for _, col := range columns {
		values = append(values, row[col])
	}

	if set == nil {
		set = make(map[string]string, len(columns))
		isKey := make(map[string]bool, len(conflict))
		for _, k := range conflict {
			isKey[k] = true
		}
		for _, col := range columns {
			if !isKey[col] {
				set[col] = "excluded." + col
			}
		}
	}

	suffix := fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(conflict, ", "))
	if len(set) > 0 {
		targets := make([]string, 0, len(set))
		for col := range set {
			targets = append(targets, col)
		}
		sort.Strings(targets)
		assignments := make([]string, 0, len(targets))
		for _, col := range targets {
			assignments = append(assignments, col+" = "+set[col])
		}
		suffix = fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(assignments, ", "))
	}

	query, args, err := s.sb.Insert(table).Columns(columns...).Values(values...).Suffix(suffix).ToSql()
	if err != nil {
		return &domain.StoreError{Op: "upsert", Table: table, Err: err}
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &domain.StoreError{Op: "upsert", Table: table, Err: err}
	}
	return nil
}

// patch updates fields on the rows matching where and returns the count.
func (s *SQLStore) patch(ctx context.Context, table string, where sq.Eq, fields map[string]any) (int64, error) {
	query, args, err := s.sb.Update(table).SetMap(fields).Where(where).ToSql()
	if err != nil {
		return 0, &domain.StoreError{Op: "patch", Table: table, Err: err}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &domain.StoreError{Op: "patch", Table: table, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &domain.StoreError{Op: "patch", Table: table, Err: err}
	}
	return n, nil
}

func (s *SQLStore) query(ctx context.Context, b sq.SelectBuilder, table string) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: table, Err: err}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: table, Err: err}
	}
	return rows, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
