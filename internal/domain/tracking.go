package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the watch tier a user assigned to a tracked item.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority validates a priority string; empty maps to normal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// TrackedItem is a user-curated watch entry over an upstream record.
type TrackedItem struct {
	ID                  string     `json:"id"`
	RecordID            string     `json:"recordId"`
	Title               string     `json:"title"`
	Priority            Priority   `json:"priority"`
	Status              string     `json:"status"`
	LastActivityDate    *time.Time `json:"lastActivityDate,omitempty"`
	LastActivityLabel   string     `json:"lastActivityLabel,omitempty"`
	NextHearingDate     *time.Time `json:"nextHearingDate,omitempty"`
	NextHearingType     string     `json:"nextHearingType,omitempty"`
	NextHearingLocation string     `json:"nextHearingLocation,omitempty"`
	CheckedAt           *time.Time `json:"checkedAt,omitempty"`
}

// TrackedPatch holds the fields refreshed on every detector pass.
type TrackedPatch struct {
	Status              string
	LastActivityDate    *time.Time
	LastActivityLabel   string
	NextHearingDate     *time.Time
	NextHearingType     string
	NextHearingLocation string
	CheckedAt           time.Time
}

// StatusChangeEvent is an immutable history entry.
type StatusChangeEvent struct {
	ID            string    `json:"id"`
	TrackedItemID string    `json:"trackedItemId"`
	RecordID      string    `json:"recordId"`
	OldStatus     string    `json:"oldStatus"`
	NewStatus     string    `json:"newStatus"`
	Label         string    `json:"label"`
	ChangedAt     time.Time `json:"changedAt"`
}

// Keyword is a tracked search term.
type Keyword struct {
	ID   string `json:"id"`
	Term string `json:"term"`
}

// AlertKey identifies one (record, keyword) pair in the alert ledger.
type AlertKey struct {
	RecordID string
	Keyword  string
}

// KeywordMatch is emitted when a search result for a keyword is neither
// tracked nor already alerted.
type KeywordMatch struct {
	RecordID  string    `json:"recordId"`
	Keyword   string    `json:"keyword"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	MatchedAt time.Time `json:"matchedAt"`
}

// NotificationKind distinguishes the events a notifier receives.
type NotificationKind string

const (
	NotifyStatusChange NotificationKind = "status_change"
	NotifyKeywordMatch NotificationKind = "keyword_match"
)

// Notification is handed to the external notifier.
type Notification struct {
	Kind     NotificationKind
	RecordID string
	Subject  string
	Text     string
}
