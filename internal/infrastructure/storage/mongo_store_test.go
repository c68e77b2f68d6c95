package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"BillWatch/internal/domain"
)

func newMockMongo(mt *mtest.T) *MongoStore {
	mt.ClearEvents()
	return newMongoStore(mt.Client, mt.DB)
}

func rawInt(v bson.RawValue) int64 {
	if i, ok := v.Int32OK(); ok {
		return int64(i)
	}
	i, _ := v.Int64OK()
	return i
}

// firstUpdate returns the first statement of an update command.
func firstUpdate(t require.TestingT, cmd bson.Raw) bson.Raw {
	updates, err := cmd.Lookup("updates").Array().Values()
	require.NoError(t, err)
	require.NotEmpty(t, updates)
	return updates[0].Document()
}

func TestMongoLoadCursor(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("absent", func(mt *mtest.T) {
		store := newMockMongo(mt)
		ns := mt.DB.Name() + "." + cursorTable
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		state, err := store.LoadCursor(context.Background(), "21")
		require.NoError(mt, err)
		require.Nil(mt, state)
	})

	mt.Run("present", func(mt *mtest.T) {
		store := newMockMongo(mt)
		ns := mt.DB.Name() + "." + cursorTable
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "21"},
			{Key: "candidate_ids", Value: bson.A{"Int 0001", "Int 0002"}},
			{Key: "position", Value: 1},
			{Key: "total", Value: 2},
			{Key: "completed", Value: false},
			{Key: "started_at", Value: now},
			{Key: "updated_at", Value: now.Add(time.Minute)},
		}))

		state, err := store.LoadCursor(context.Background(), "21")
		require.NoError(mt, err)
		require.NotNil(mt, state)
		require.Equal(mt, "21", state.ScopeKey)
		require.Equal(mt, []string{"Int 0001", "Int 0002"}, state.CandidateIDs)
		require.Equal(mt, 1, state.Position)
		require.Equal(mt, 2, state.Total)
		require.True(mt, state.StartedAt.Equal(now))
		require.Equal(mt, time.UTC, state.UpdatedAt.Location())
	})

	mt.Run("read failure", func(mt *mtest.T) {
		store := newMockMongo(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 13, Name: "Unauthorized", Message: "not authorized",
		}))

		_, err := store.LoadCursor(context.Background(), "21")
		var storeErr *domain.StoreError
		require.True(mt, errors.As(err, &storeErr))
		require.Equal(mt, "read", storeErr.Op)
		require.False(mt, errors.Is(err, domain.ErrStoreWrite))
	})
}

func TestMongoSaveCursorOnlyMovesForward(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("replayed older position", func(mt *mtest.T) {
		store := newMockMongo(mt)
		ok := mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0})
		mt.AddMockResponses(ok, ok)

		state := domain.NewCursor("21", []string{"Int 0001", "Int 0002", "Int 0003"}, now)
		state.Advance(1, now.Add(time.Minute))
		require.NoError(mt, store.SaveCursor(context.Background(), state))

		insert := mt.GetStartedEvent()
		require.NotNil(mt, insert)
		require.Equal(mt, "update", insert.CommandName)
		stmt := firstUpdate(mt, insert.Command)
		require.True(mt, stmt.Lookup("upsert").Boolean())
		update := stmt.Lookup("u").Document()
		_, err := update.LookupErr("$set")
		require.Error(mt, err)
		require.Equal(mt, int64(3), rawInt(update.Lookup("$setOnInsert", "total")))

		advance := mt.GetStartedEvent()
		require.NotNil(mt, advance)
		require.Equal(mt, "update", advance.CommandName)
		stmt = firstUpdate(mt, advance.Command)
		require.Equal(mt, "21", stmt.Lookup("q", "_id").StringValue())
		require.Equal(mt, int64(1), rawInt(stmt.Lookup("q", "position", "$lt")))
		require.Equal(mt, int64(1), rawInt(stmt.Lookup("u", "$set", "position")))
		if upsert, err := stmt.LookupErr("upsert"); err == nil {
			require.False(mt, upsert.Boolean())
		}

		require.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("write failure", func(mt *mtest.T) {
		store := newMockMongo(mt)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "duplicate key",
		}))

		err := store.SaveCursor(context.Background(), domain.NewCursor("21", []string{"Int 0001"}, now))
		require.True(mt, errors.Is(err, domain.ErrStoreWrite))
	})
}

func TestMongoPatchTrackedItemMissing(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("no match", func(mt *mtest.T) {
		store := newMockMongo(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := store.PatchTrackedItem(context.Background(), "t1", domain.TrackedPatch{
			Status:    "Committee",
			CheckedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		})
		require.True(mt, errors.Is(err, domain.ErrNotFound))
		require.True(mt, errors.Is(err, domain.ErrStoreWrite))
	})
}

func TestMongoStatusHistory(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	at := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	mt.Run("oldest first", func(mt *mtest.T) {
		store := newMockMongo(mt)
		ns := mt.DB.Name() + "." + historyTable
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "e1"},
				{Key: "tracked_item_id", Value: "t1"},
				{Key: "record_id", Value: "Int 0042"},
				{Key: "old_status", Value: "Introduced"},
				{Key: "new_status", Value: "Committee"},
				{Key: "label", Value: "Referred to Committee"},
				{Key: "changed_at", Value: at},
			},
			bson.D{
				{Key: "_id", Value: "e2"},
				{Key: "tracked_item_id", Value: "t1"},
				{Key: "record_id", Value: "Int 0042"},
				{Key: "old_status", Value: "Committee"},
				{Key: "new_status", Value: "Enacted"},
				{Key: "changed_at", Value: at.Add(24 * time.Hour)},
			},
		))

		events, err := store.StatusHistory(context.Background(), "t1")
		require.NoError(mt, err)
		require.Len(mt, events, 2)
		require.Equal(mt, "Committee", events[0].NewStatus)
		require.Equal(mt, "Enacted", events[1].NewStatus)
		require.True(mt, events[0].ChangedAt.Equal(at))

		find := mt.GetStartedEvent()
		require.NotNil(mt, find)
		require.Equal(mt, "find", find.CommandName)
		require.Equal(mt, "t1", find.Command.Lookup("filter", "tracked_item_id").StringValue())
		require.Equal(mt, int64(1), rawInt(find.Command.Lookup("sort", "changed_at")))
	})
}
