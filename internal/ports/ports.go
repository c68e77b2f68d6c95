package ports

import (
	"context"
	"time"

	"BillWatch/internal/domain"
)

// Upstream talks to the external legislative-records API.
type Upstream interface {
	Search(ctx context.Context, q domain.SearchQuery) ([]domain.SearchHit, error)
	Detail(ctx context.Context, id string) (domain.RecordDetail, error)
}

// CursorRepository persists one CursorState per scope.
// LoadCursor returns nil, nil when the scope has no cursor.
type CursorRepository interface {
	LoadCursor(ctx context.Context, scope string) (*domain.CursorState, error)
	SaveCursor(ctx context.Context, state *domain.CursorState) error
	DeleteCursor(ctx context.Context, scope string) error
}

// RecordRepository is the cache of fetched records.
type RecordRepository interface {
	UpsertRecord(ctx context.Context, record domain.CachedRecord) error
	Record(ctx context.Context, id string) (*domain.CachedRecord, error)
	CountRecords(ctx context.Context, scope string) (int, error)
}

// TrackingRepository exposes the user-curated watch list and its logs.
type TrackingRepository interface {
	TrackedItems(ctx context.Context) ([]domain.TrackedItem, error)
	SaveTrackedItem(ctx context.Context, item domain.TrackedItem) error
	PatchTrackedItem(ctx context.Context, id string, patch domain.TrackedPatch) error
	AppendStatusChange(ctx context.Context, event domain.StatusChangeEvent) error
	StatusHistory(ctx context.Context, trackedItemID string) ([]domain.StatusChangeEvent, error)
	Keywords(ctx context.Context) ([]domain.Keyword, error)
	SaveKeyword(ctx context.Context, kw domain.Keyword) error
	AlertLedger(ctx context.Context) (map[domain.AlertKey]bool, error)
	AppendAlert(ctx context.Context, key domain.AlertKey, at time.Time) error
}

// Store bundles every repository a backend provides.
type Store interface {
	CursorRepository
	RecordRepository
	TrackingRepository
	Close() error
}

// CandidateStrategy produces the full candidate set for a scope.
// On a partial failure it returns the identifiers gathered so far
// together with the error.
type CandidateStrategy interface {
	Name() string
	Candidates(ctx context.Context, scope string) ([]string, error)
}

// Notifier hands alerts to the outbound channel.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Scheduler runs job on an interval until it reports done or ctx ends.
type Scheduler interface {
	Run(ctx context.Context, job func(ctx context.Context, tick time.Time) (bool, error)) error
}
