package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"BillWatch/internal/domain"
)

type memStore struct {
	cursors  map[string]domain.CursorState
	records  map[string]domain.CachedRecord
	items    map[string]domain.TrackedItem
	history  []domain.StatusChangeEvent
	keywords []domain.Keyword
	ledger   map[domain.AlertKey]bool

	saves      int
	failUpsert map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		cursors: map[string]domain.CursorState{},
		records: map[string]domain.CachedRecord{},
		items:   map[string]domain.TrackedItem{},
		ledger:  map[domain.AlertKey]bool{},
	}
}

func (m *memStore) LoadCursor(_ context.Context, scope string) (*domain.CursorState, error) {
	state, ok := m.cursors[scope]
	if !ok {
		return nil, nil
	}
	state.CandidateIDs = append([]string(nil), state.CandidateIDs...)
	return &state, nil
}

func (m *memStore) SaveCursor(_ context.Context, state *domain.CursorState) error {
	m.saves++
	if existing, ok := m.cursors[state.ScopeKey]; ok && existing.Position > state.Position {
		return nil
	}
	stored := *state
	stored.CandidateIDs = append([]string(nil), state.CandidateIDs...)
	m.cursors[state.ScopeKey] = stored
	return nil
}

func (m *memStore) DeleteCursor(_ context.Context, scope string) error {
	delete(m.cursors, scope)
	return nil
}

func (m *memStore) UpsertRecord(_ context.Context, r domain.CachedRecord) error {
	if m.failUpsert[r.ID] {
		return &domain.StoreError{Op: "upsert", Table: "cached_records", Err: errors.New("disk full")}
	}
	m.records[r.ID] = r
	return nil
}

func (m *memStore) Record(_ context.Context, id string) (*domain.CachedRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) CountRecords(_ context.Context, scope string) (int, error) {
	n := 0
	for _, r := range m.records {
		if r.ScopeKey == scope {
			n++
		}
	}
	return n, nil
}

func (m *memStore) TrackedItems(context.Context) ([]domain.TrackedItem, error) {
	out := make([]domain.TrackedItem, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SaveTrackedItem(_ context.Context, item domain.TrackedItem) error {
	m.items[item.ID] = item
	return nil
}

func (m *memStore) PatchTrackedItem(_ context.Context, id string, p domain.TrackedPatch) error {
	item, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	checked := p.CheckedAt
	item.Status = p.Status
	item.LastActivityDate = p.LastActivityDate
	item.LastActivityLabel = p.LastActivityLabel
	item.NextHearingDate = p.NextHearingDate
	item.NextHearingType = p.NextHearingType
	item.NextHearingLocation = p.NextHearingLocation
	item.CheckedAt = &checked
	m.items[id] = item
	return nil
}

func (m *memStore) AppendStatusChange(_ context.Context, e domain.StatusChangeEvent) error {
	m.history = append(m.history, e)
	return nil
}

func (m *memStore) StatusHistory(_ context.Context, id string) ([]domain.StatusChangeEvent, error) {
	var out []domain.StatusChangeEvent
	for _, e := range m.history {
		if e.TrackedItemID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) Keywords(context.Context) ([]domain.Keyword, error) {
	return m.keywords, nil
}

func (m *memStore) SaveKeyword(_ context.Context, kw domain.Keyword) error {
	m.keywords = append(m.keywords, kw)
	return nil
}

func (m *memStore) AlertLedger(context.Context) (map[domain.AlertKey]bool, error) {
	snapshot := make(map[domain.AlertKey]bool, len(m.ledger))
	for k, v := range m.ledger {
		snapshot[k] = v
	}
	return snapshot, nil
}

func (m *memStore) AppendAlert(_ context.Context, key domain.AlertKey, _ time.Time) error {
	m.ledger[key] = true
	return nil
}

func (m *memStore) Close() error { return nil }

type fakeUpstream struct {
	details  map[string]domain.RecordDetail
	fail     map[string]error
	hits     map[string][]domain.SearchHit
	onDetail func(id string)

	mu      sync.Mutex
	fetched []string
}

func (f *fakeUpstream) Search(_ context.Context, q domain.SearchQuery) ([]domain.SearchHit, error) {
	return f.hits[q.Keyword], nil
}

func (f *fakeUpstream) Detail(_ context.Context, id string) (domain.RecordDetail, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if f.onDetail != nil {
		f.onDetail(id)
	}
	if err, ok := f.fail[id]; ok {
		return domain.RecordDetail{}, err
	}
	d, ok := f.details[id]
	if !ok {
		return domain.RecordDetail{}, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeUpstream) fetchedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

type staticStrategy struct {
	ids   []string
	err   error
	calls int
}

func (s *staticStrategy) Name() string { return "static" }

func (s *staticStrategy) Candidates(context.Context, string) ([]string, error) {
	s.calls++
	return s.ids, s.err
}

type recordingNotifier struct {
	sent []domain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}
