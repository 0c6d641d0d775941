package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/storage"
	"github.com/openbaas/corestore/internal/storage/memstore"
	"github.com/openbaas/corestore/internal/value"
)

func newRecord(className, objectID string, fields value.Object) *object.Record {
	rec := object.New(className)
	rec.ObjectID = objectID
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	rec.Fields = fields
	return rec
}

func TestCreateGetDelete(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	rec := newRecord("GameScore", "a1", value.Object{"score": value.Number(10)})
	require.NoError(t, s.Create(ctx, rec))
	assert.ErrorIs(t, s.Create(ctx, rec), storage.ErrDuplicateID)

	got, err := s.Get(ctx, "GameScore", "a1")
	require.NoError(t, err)
	assert.Equal(t, value.Object{"score": value.Number(10)}, got.Fields)

	// Mutating the returned record must not touch the stored copy.
	got.Set("score", value.Number(99))
	again, err := s.Get(ctx, "GameScore", "a1")
	require.NoError(t, err)
	v, _ := again.Get("score")
	assert.Equal(t, value.Number(10), v)

	require.NoError(t, s.Delete(ctx, "GameScore", "a1"))
	assert.ErrorIs(t, s.Delete(ctx, "GameScore", "a1"), storage.ErrNotFound)
	_, err = s.Get(ctx, "GameScore", "a1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFindWithPredicates(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	for i, score := range []float64{10, 20, 30} {
		rec := newRecord("GameScore", string(rune('a'+i)), value.Object{"score": value.Number(score)})
		require.NoError(t, s.Create(ctx, rec))
	}

	recs, err := s.Find(ctx, "GameScore",
		storage.Compare{Field: "score", Op: storage.OpGreaterThan, Value: value.Number(15)},
		storage.UnlimitedFind())
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = s.Find(ctx, "GameScore",
		storage.In{Field: "score", Values: []value.Value{value.Number(10), value.Number(30)}},
		storage.UnlimitedFind())
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = s.Find(ctx, "GameScore",
		storage.Exists{Field: "missing", Present: false},
		storage.UnlimitedFind())
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	n, err := s.Count(ctx, "GameScore", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestFindSortAndPaginate(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	for i, score := range []float64{30, 10, 20} {
		rec := newRecord("GameScore", string(rune('a'+i)), value.Object{"score": value.Number(score)})
		require.NoError(t, s.Create(ctx, rec))
	}

	opts := storage.FindOptions{Limit: 2, Skip: 1, Order: []storage.Sort{{Field: "score", Desc: true}}}
	recs, err := s.Find(ctx, "GameScore", nil, opts)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	first, _ := recs[0].Get("score")
	second, _ := recs[1].Get("score")
	assert.Equal(t, value.Number(20), first)
	assert.Equal(t, value.Number(10), second)
}

func TestUpdateAppliesChange(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	rec := newRecord("GameScore", "a1", value.Object{
		"score": value.Number(10),
		"tag":   value.String("old"),
	})
	require.NoError(t, s.Create(ctx, rec))

	stamp := time.Now().UTC().Add(time.Minute)
	updated, err := s.Update(ctx, "GameScore", "a1", storage.Change{
		Set:       value.Object{"score": value.Number(11), "nested.deep": value.String("v")},
		Unset:     []string{"tag"},
		UpdatedAt: stamp,
	})
	require.NoError(t, err)

	v, _ := updated.Get("score")
	assert.Equal(t, value.Number(11), v)
	v, _ = updated.Get("nested.deep")
	assert.Equal(t, value.String("v"), v)
	assert.False(t, updated.Has("tag"))
	assert.Equal(t, stamp, updated.UpdatedAt)

	_, err = s.Update(ctx, "GameScore", "gone", storage.Change{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMissingFieldMatchesNotEqual(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRecord("Doc", "a", value.Object{"kind": value.String("x")})))
	require.NoError(t, s.Create(ctx, newRecord("Doc", "b", value.Object{})))

	recs, err := s.Find(ctx, "Doc",
		storage.Compare{Field: "kind", Op: storage.OpNotEqual, Value: value.String("x")},
		storage.UnlimitedFind())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].ObjectID)
}
