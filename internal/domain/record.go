package domain

import (
	"encoding/json"
	"time"
)

// SearchQuery carries the parameters of one paginated upstream search.
type SearchQuery struct {
	Keyword    string
	CategoryID string
	ScopeID    string
	Limit      int
	Offset     int
}

// SearchHit is a summary row returned by the upstream search endpoint.
type SearchHit struct {
	ID       string
	Title    string
	Category string
	Status   string
}

// RecordDetail is the normalised detail payload of one upstream record.
// Raw keeps the decoded payload for shape-specific extraction.
type RecordDetail struct {
	ID           string
	Title        string
	Category     string
	Status       string
	Sponsor      string
	Cosponsors   []string
	Committees   []string
	IntroducedAt *time.Time
	Link         string
	Raw          map[string]any
	RawJSON      json.RawMessage
}

// CachedRecord is one row of the queryable record cache.
type CachedRecord struct {
	ID           string
	ScopeKey     string
	Title        string
	Category     string
	Status       string
	Sponsor      string
	Cosponsors   []string
	Committees   []string
	IntroducedAt *time.Time
	Detail       json.RawMessage
	Link         string
	CachedAt     time.Time
}

// NewCachedRecord maps a fetched detail into a cache row for scope.
func NewCachedRecord(scope string, d RecordDetail, now time.Time) CachedRecord {
	return CachedRecord{
		ID:           d.ID,
		ScopeKey:     scope,
		Title:        d.Title,
		Category:     d.Category,
		Status:       d.Status,
		Sponsor:      d.Sponsor,
		Cosponsors:   d.Cosponsors,
		Committees:   d.Committees,
		IntroducedAt: d.IntroducedAt,
		Detail:       d.RawJSON,
		Link:         d.Link,
		CachedAt:     now,
	}
}
