package domain

import "time"

// RunStatus tags the outcome of a single cache-building invocation.
type RunStatus string

const (
	StatusInitialized RunStatus = "initialized"
	StatusInProgress  RunStatus = "in_progress"
	StatusComplete    RunStatus = "complete"
	// StatusAbsent is only reported by read-only status queries.
	StatusAbsent RunStatus = "absent"
)

// CursorState is the persisted checkpoint of one scope's enumeration.
// CandidateIDs is generated once and only replaced by deleting the row.
type CursorState struct {
	ScopeKey     string
	CandidateIDs []string
	Position     int
	Total        int
	Completed    bool
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// NewCursor creates a cursor positioned at the start of ids.
func NewCursor(scope string, ids []string, now time.Time) *CursorState {
	candidates := make([]string, len(ids))
	copy(candidates, ids)
	return &CursorState{
		ScopeKey:     scope,
		CandidateIDs: candidates,
		Position:     0,
		Total:        len(candidates),
		Completed:    len(candidates) == 0,
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

// Batch returns the next slice of at most size identifiers.
func (c *CursorState) Batch(size int) []string {
	if c == nil || size <= 0 || c.Position >= c.Total {
		return nil
	}
	end := c.Position + size
	if end > c.Total {
		end = c.Total
	}
	return c.CandidateIDs[c.Position:end]
}

// Advance moves the cursor forward by size and recomputes Completed.
// The position never moves backwards.
func (c *CursorState) Advance(size int, now time.Time) {
	if size < 0 {
		size = 0
	}
	next := c.Position + size
	if next > c.Total {
		next = c.Total
	}
	if next > c.Position {
		c.Position = next
	}
	c.Completed = c.Position >= c.Total
	c.UpdatedAt = now
}

// Phase reports the run status implied by the cursor position.
func (c *CursorState) Phase() RunStatus {
	if c.Completed || c.Position >= c.Total {
		return StatusComplete
	}
	return StatusInProgress
}
