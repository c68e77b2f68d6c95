package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"BillWatch/internal/domain"
	"BillWatch/internal/ports"
)

// MongoStore implements the same repositories on MongoDB collections.
type MongoStore struct {
	client   *mongo.Client
	cursors  *mongo.Collection
	records  *mongo.Collection
	tracked  *mongo.Collection
	keywords *mongo.Collection
	history  *mongo.Collection
	alerts   *mongo.Collection
}

var _ ports.Store = (*MongoStore)(nil)

type cursorDoc struct {
	ScopeKey     string    `bson:"_id"`
	CandidateIDs []string  `bson:"candidate_ids"`
	Position     int       `bson:"position"`
	Total        int       `bson:"total"`
	Completed    bool      `bson:"completed"`
	StartedAt    time.Time `bson:"started_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type recordDoc struct {
	ID           string     `bson:"_id"`
	ScopeKey     string     `bson:"scope_key"`
	Title        string     `bson:"title"`
	Category     string     `bson:"category"`
	Status       string     `bson:"status"`
	Sponsor      string     `bson:"sponsor"`
	Cosponsors   []string   `bson:"cosponsors"`
	Committees   []string   `bson:"committees"`
	IntroducedAt *time.Time `bson:"introduced_at,omitempty"`
	Detail       string     `bson:"detail"`
	Link         string     `bson:"link"`
	CachedAt     time.Time  `bson:"cached_at"`
}

type trackedDoc struct {
	ID                  string     `bson:"_id"`
	RecordID            string     `bson:"record_id"`
	Title               string     `bson:"title"`
	Priority            string     `bson:"priority"`
	Status              string     `bson:"status"`
	LastActivityDate    *time.Time `bson:"last_activity_date"`
	LastActivityLabel   string     `bson:"last_activity_label"`
	NextHearingDate     *time.Time `bson:"next_hearing_date"`
	NextHearingType     string     `bson:"next_hearing_type"`
	NextHearingLocation string     `bson:"next_hearing_location"`
	CheckedAt           *time.Time `bson:"checked_at"`
}

// OpenMongo connects to uri and prepares the collections in database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := newMongoStore(client, client.Database(database))
	if err := s.createIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func newMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:   client,
		cursors:  db.Collection(cursorTable),
		records:  db.Collection(recordTable),
		tracked:  db.Collection(trackedTable),
		keywords: db.Collection(keywordTable),
		history:  db.Collection(historyTable),
		alerts:   db.Collection(alertTable),
	}
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.records, mongo.IndexModel{Keys: bson.D{{Key: "scope_key", Value: 1}}}},
		{s.keywords, mongo.IndexModel{Keys: bson.D{{Key: "term", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{s.history, mongo.IndexModel{Keys: bson.D{{Key: "tracked_item_id", Value: 1}, {Key: "changed_at", Value: 1}}}},
		{s.alerts, mongo.IndexModel{Keys: bson.D{{Key: "record_id", Value: 1}, {Key: "keyword", Value: 1}}, Options: options.Index().SetUnique(true)}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// LoadCursor returns the cursor for scope or nil when absent.
func (s *MongoStore) LoadCursor(ctx context.Context, scope string) (*domain.CursorState, error) {
	var doc cursorDoc
	err := s.cursors.FindOne(ctx, bson.M{"_id": scope}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: cursorTable, Err: err}
	}
	return &domain.CursorState{
		ScopeKey:     doc.ScopeKey,
		CandidateIDs: doc.CandidateIDs,
		Position:     doc.Position,
		Total:        doc.Total,
		Completed:    doc.Completed,
		StartedAt:    doc.StartedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}, nil
}

// SaveCursor inserts the cursor once and afterwards only moves it forward.
func (s *MongoStore) SaveCursor(ctx context.Context, state *domain.CursorState) error {
	filter := bson.M{"_id": state.ScopeKey}
	insert := bson.M{
		"$setOnInsert": bson.M{
			"candidate_ids": nonNil(state.CandidateIDs),
			"total":         state.Total,
			"started_at":    state.StartedAt.UTC(),
			"position":      state.Position,
			"completed":     state.Completed,
			"updated_at":    state.UpdatedAt.UTC(),
		},
	}
	if _, err := s.cursors.UpdateOne(ctx, filter, insert, options.Update().SetUpsert(true)); err != nil {
		return &domain.StoreError{Op: "upsert", Table: cursorTable, Err: err}
	}

	advance := bson.M{"$set": bson.M{
		"position":   state.Position,
		"completed":  state.Completed,
		"updated_at": state.UpdatedAt.UTC(),
	}}
	forward := bson.M{"_id": state.ScopeKey, "position": bson.M{"$lt": state.Position}}
	if _, err := s.cursors.UpdateOne(ctx, forward, advance); err != nil {
		return &domain.StoreError{Op: "upsert", Table: cursorTable, Err: err}
	}
	return nil
}

// DeleteCursor removes the scope's cursor.
func (s *MongoStore) DeleteCursor(ctx context.Context, scope string) error {
	if _, err := s.cursors.DeleteOne(ctx, bson.M{"_id": scope}); err != nil {
		return &domain.StoreError{Op: "delete", Table: cursorTable, Err: err}
	}
	return nil
}

// UpsertRecord writes the record, replacing any previous copy.
func (s *MongoStore) UpsertRecord(ctx context.Context, r domain.CachedRecord) error {
	doc := recordDoc{
		ID:           r.ID,
		ScopeKey:     r.ScopeKey,
		Title:        r.Title,
		Category:     r.Category,
		Status:       r.Status,
		Sponsor:      r.Sponsor,
		Cosponsors:   nonNil(r.Cosponsors),
		Committees:   nonNil(r.Committees),
		IntroducedAt: r.IntroducedAt,
		Detail:       string(r.Detail),
		Link:         r.Link,
		CachedAt:     r.CachedAt.UTC(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.records.ReplaceOne(ctx, bson.M{"_id": r.ID}, doc, opts); err != nil {
		return &domain.StoreError{Op: "upsert", Table: recordTable, Err: err}
	}
	return nil
}

// Record returns the cached record or nil when it was never cached.
func (s *MongoStore) Record(ctx context.Context, id string) (*domain.CachedRecord, error) {
	var doc recordDoc
	err := s.records.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: recordTable, Err: err}
	}
	return &domain.CachedRecord{
		ID:           doc.ID,
		ScopeKey:     doc.ScopeKey,
		Title:        doc.Title,
		Category:     doc.Category,
		Status:       doc.Status,
		Sponsor:      doc.Sponsor,
		Cosponsors:   doc.Cosponsors,
		Committees:   doc.Committees,
		IntroducedAt: doc.IntroducedAt,
		Detail:       json.RawMessage(doc.Detail),
		Link:         doc.Link,
		CachedAt:     doc.CachedAt.UTC(),
	}, nil
}

// CountRecords reports how many records are cached for scope.
func (s *MongoStore) CountRecords(ctx context.Context, scope string) (int, error) {
	n, err := s.records.CountDocuments(ctx, bson.M{"scope_key": scope})
	if err != nil {
		return 0, &domain.StoreError{Op: "read", Table: recordTable, Err: err}
	}
	return int(n), nil
}

// TrackedItems lists every watch entry.
func (s *MongoStore) TrackedItems(ctx context.Context) ([]domain.TrackedItem, error) {
	cur, err := s.tracked.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: trackedTable, Err: err}
	}
	var docs []trackedDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: trackedTable, Err: err}
	}

	items := make([]domain.TrackedItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, domain.TrackedItem{
			ID:                  d.ID,
			RecordID:            d.RecordID,
			Title:               d.Title,
			Priority:            domain.Priority(d.Priority),
			Status:              d.Status,
			LastActivityDate:    d.LastActivityDate,
			LastActivityLabel:   d.LastActivityLabel,
			NextHearingDate:     d.NextHearingDate,
			NextHearingType:     d.NextHearingType,
			NextHearingLocation: d.NextHearingLocation,
			CheckedAt:           d.CheckedAt,
		})
	}
	return items, nil
}

// SaveTrackedItem creates or replaces a watch entry.
func (s *MongoStore) SaveTrackedItem(ctx context.Context, item domain.TrackedItem) error {
	priority := item.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	doc := trackedDoc{
		ID:                  item.ID,
		RecordID:            item.RecordID,
		Title:               item.Title,
		Priority:            string(priority),
		Status:              item.Status,
		LastActivityDate:    item.LastActivityDate,
		LastActivityLabel:   item.LastActivityLabel,
		NextHearingDate:     item.NextHearingDate,
		NextHearingType:     item.NextHearingType,
		NextHearingLocation: item.NextHearingLocation,
		CheckedAt:           item.CheckedAt,
	}
	if _, err := s.tracked.ReplaceOne(ctx, bson.M{"_id": item.ID}, doc, options.Replace().SetUpsert(true)); err != nil {
		return &domain.StoreError{Op: "upsert", Table: trackedTable, Err: err}
	}
	return nil
}

// PatchTrackedItem refreshes the detector-owned fields of one entry.
func (s *MongoStore) PatchTrackedItem(ctx context.Context, id string, p domain.TrackedPatch) error {
	checked := p.CheckedAt.UTC()
	update := bson.M{"$set": bson.M{
		"status":                p.Status,
		"last_activity_date":    p.LastActivityDate,
		"last_activity_label":   p.LastActivityLabel,
		"next_hearing_date":     p.NextHearingDate,
		"next_hearing_type":     p.NextHearingType,
		"next_hearing_location": p.NextHearingLocation,
		"checked_at":            &checked,
	}}
	res, err := s.tracked.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return &domain.StoreError{Op: "patch", Table: trackedTable, Err: err}
	}
	if res.MatchedCount == 0 {
		return &domain.StoreError{Op: "patch", Table: trackedTable, Err: fmt.Errorf("tracked item %s: %w", id, domain.ErrNotFound)}
	}
	return nil
}

// AppendStatusChange writes an immutable history entry.
func (s *MongoStore) AppendStatusChange(ctx context.Context, e domain.StatusChangeEvent) error {
	doc := bson.M{
		"tracked_item_id": e.TrackedItemID,
		"record_id":       e.RecordID,
		"old_status":      e.OldStatus,
		"new_status":      e.NewStatus,
		"label":           e.Label,
		"changed_at":      e.ChangedAt.UTC(),
	}
	_, err := s.history.UpdateOne(ctx, bson.M{"_id": e.ID}, bson.M{"$setOnInsert": doc}, options.Update().SetUpsert(true))
	if err != nil {
		return &domain.StoreError{Op: "insert", Table: historyTable, Err: err}
	}
	return nil
}

// StatusHistory lists the history of one tracked item, oldest first.
func (s *MongoStore) StatusHistory(ctx context.Context, trackedItemID string) ([]domain.StatusChangeEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "changed_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.history.Find(ctx, bson.M{"tracked_item_id": trackedItemID}, opts)
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: historyTable, Err: err}
	}
	var docs []struct {
		ID            string    `bson:"_id"`
		TrackedItemID string    `bson:"tracked_item_id"`
		RecordID      string    `bson:"record_id"`
		OldStatus     string    `bson:"old_status"`
		NewStatus     string    `bson:"new_status"`
		Label         string    `bson:"label"`
		ChangedAt     time.Time `bson:"changed_at"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: historyTable, Err: err}
	}

	events := make([]domain.StatusChangeEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, domain.StatusChangeEvent{
			ID:            d.ID,
			TrackedItemID: d.TrackedItemID,
			RecordID:      d.RecordID,
			OldStatus:     d.OldStatus,
			NewStatus:     d.NewStatus,
			Label:         d.Label,
			ChangedAt:     d.ChangedAt.UTC(),
		})
	}
	return events, nil
}

// Keywords lists the tracked search terms.
func (s *MongoStore) Keywords(ctx context.Context) ([]domain.Keyword, error) {
	cur, err := s.keywords.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "term", Value: 1}}))
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: keywordTable, Err: err}
	}
	var docs []struct {
		ID   string `bson:"_id"`
		Term string `bson:"term"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: keywordTable, Err: err}
	}
	out := make([]domain.Keyword, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Keyword{ID: d.ID, Term: d.Term})
	}
	return out, nil
}

// SaveKeyword adds a term; an existing term is left as is.
func (s *MongoStore) SaveKeyword(ctx context.Context, kw domain.Keyword) error {
	update := bson.M{"$setOnInsert": bson.M{"_id": kw.ID}}
	if _, err := s.keywords.UpdateOne(ctx, bson.M{"term": kw.Term}, update, options.Update().SetUpsert(true)); err != nil {
		return &domain.StoreError{Op: "upsert", Table: keywordTable, Err: err}
	}
	return nil
}

// AlertLedger loads every (record, keyword) pair already alerted.
func (s *MongoStore) AlertLedger(ctx context.Context) (map[domain.AlertKey]bool, error) {
	opts := options.Find().SetProjection(bson.M{"record_id": 1, "keyword": 1})
	cur, err := s.alerts.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, &domain.StoreError{Op: "read", Table: alertTable, Err: err}
	}
	defer cur.Close(ctx)

	ledger := make(map[domain.AlertKey]bool)
	for cur.Next(ctx) {
		var doc struct {
			RecordID string `bson:"record_id"`
			Keyword  string `bson:"keyword"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, &domain.StoreError{Op: "read", Table: alertTable, Err: err}
		}
		ledger[domain.AlertKey{RecordID: doc.RecordID, Keyword: doc.Keyword}] = true
	}
	if err := cur.Err(); err != nil {
		return nil, &domain.StoreError{Op: "read", Table: alertTable, Err: err}
	}
	return ledger, nil
}

// AppendAlert records that key has been alerted.
func (s *MongoStore) AppendAlert(ctx context.Context, key domain.AlertKey, at time.Time) error {
	filter := bson.M{"record_id": key.RecordID, "keyword": key.Keyword}
	update := bson.M{"$setOnInsert": bson.M{"alerted_at": at.UTC()}}
	if _, err := s.alerts.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return &domain.StoreError{Op: "insert", Table: alertTable, Err: err}
	}
	return nil
}
