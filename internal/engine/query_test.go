package engine_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbaas/corestore/internal/config"
	"github.com/openbaas/corestore/internal/engine"
	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/storage"
	"github.com/openbaas/corestore/internal/storage/memstore"
	"github.com/openbaas/corestore/internal/types"
)

// countingAdapter wraps a storage adapter and counts calls, so tests can
// assert how often the engine touches the backend.
type countingAdapter struct {
	storage.Adapter
	finds  atomic.Int64
	counts atomic.Int64
}

func (c *countingAdapter) Find(ctx context.Context, className string, where storage.Predicate, opts storage.FindOptions) ([]*object.Record, error) {
	c.finds.Add(1)
	return c.Adapter.Find(ctx, className, where, opts)
}

func (c *countingAdapter) Count(ctx context.Context, className string, where storage.Predicate) (int64, error) {
	c.counts.Add(1)
	return c.Adapter.Count(ctx, className, where)
}

func newCountingEngine() (*engine.Engine, *countingAdapter) {
	adapter := &countingAdapter{Adapter: memstore.New()}
	return engine.New(config.Default(), adapter), adapter
}

func seedScores(t *testing.T, eng *engine.Engine, scores ...int) []string {
	t.Helper()
	ids := make([]string, 0, len(scores))
	for _, score := range scores {
		result, err := eng.Create(context.Background(), engine.Nobody(), "GameScore", map[string]interface{}{
			"score": score,
		})
		require.NoError(t, err)
		ids = append(ids, result.Record.ObjectID)
	}
	return ids
}

func TestFindWithOperators(t *testing.T) {
	eng := newTestEngine(nil)
	ctx := context.Background()
	seedScores(t, eng, 10, 20, 30, 40)

	result, err := eng.Find(ctx, engine.Nobody(), "GameScore", map[string]interface{}{
		"score": map[string]interface{}{"$gt": 15, "$lte": 30},
	}, engine.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Results, 2)

	result, err = eng.Find(ctx, engine.Nobody(), "GameScore", map[string]interface{}{
		"score": map[string]interface{}{"$in": []interface{}{10, 40}},
	}, engine.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Results, 2)

	result, err = eng.Find(ctx, engine.Nobody(), "GameScore", map[string]interface{}{
		"$or": []interface{}{
			map[string]interface{}{"score": 10},
			map[string]interface{}{"score": 40},
		},
	}, engine.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Results, 2)
}

func TestFindUnknownOperatorIsInvalidQuery(t *testing.T) {
	eng := newTestEngine(nil)
	seedScores(t, eng, 10)

	_, err := eng.Find(context.Background(), engine.Nobody(), "GameScore", map[string]interface{}{
		"score": map[string]interface{}{"$frobnicate": 1},
	}, engine.QueryOptions{})
	requireAPIError(t, err, types.CodeInvalidQuery)
}

func TestFindOrderSkipLimit(t *testing.T) {
	eng := newTestEngine(nil)
	ctx := context.Background()
	seedScores(t, eng, 30, 10, 40, 20)

	result, err := eng.Find(ctx, engine.Nobody(), "GameScore", nil, engine.QueryOptions{
		Order: engine.ParseOrder("-score"),
		Skip:  1,
		Limit: engine.Limited(2),
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.Equal(t, float64(30), result.Results[0]["score"])
	assert.Equal(t, float64(20), result.Results[1]["score"])
}

func TestFindLimitZeroSkipsAdapter(t *testing.T) {
	eng, adapter := newCountingEngine()
	ctx := context.Background()
	seedScores(t, eng, 10, 20)

	adapter.finds.Store(0)
	result, err := eng.Find(ctx, engine.Nobody(), "GameScore", nil, engine.QueryOptions{
		Limit: engine.Limited(0),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.Nil(t, result.Count)
	assert.Equal(t, int64(0), adapter.finds.Load())
}

func TestFindLimitZeroWithCount(t *testing.T) {
	eng, adapter := newCountingEngine()
	ctx := context.Background()
	seedScores(t, eng, 10, 20, 30)

	adapter.finds.Store(0)
	result, err := eng.Find(ctx, engine.Nobody(), "GameScore", nil, engine.QueryOptions{
		Limit: engine.Limited(0),
		Count: true,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	require.NotNil(t, result.Count)
	assert.Equal(t, int64(3), *result.Count)
	assert.Equal(t, int64(0), adapter.finds.Load())
}

func TestFindNegativeLimitUsesDefault(t *testing.T) {
	eng := newTestEngine(nil)
	ctx := context.Background()
	seedScores(t, eng, 10, 20, 30)

	result, err := eng.Find(ctx, engine.Nobody(), "GameScore", nil, engine.QueryOptions{
		Limit: engine.Limited(-1),
	})
	require.NoError(t, err)
	assert.Len(t, result.Results, 3)
}

func TestCountIndependentOfLimit(t *testing.T) {
	eng := newTestEngine(nil)
	ctx := context.Background()
	seedScores(t, eng, 10, 20, 30, 40)

	result, err := eng.Find(ctx, engine.Nobody(), "GameScore", nil, engine.QueryOptions{
		Limit: engine.Limited(2),
		Count: true,
	})
	require.NoError(t, err)
	assert.Len(t, result.Results, 2)
	require.NotNil(t, result.Count)
	assert.Equal(t, int64(4), *result.Count)
}

func TestIncludeResolvesPointersInOneBatch(t *testing.T) {
	eng, adapter := newCountingEngine()
	ctx := context.Background()

	authors := make([]string, 0, 2)
	for _, name := range []string{"ann", "ben"} {
		result, err := eng.Create(ctx, engine.Nobody(), "Author", map[string]interface{}{"name": name})
		require.NoError(t, err)
		authors = append(authors, result.Record.ObjectID)
	}
	for i := 0; i < 4; i++ {
		_, err := eng.Create(ctx, engine.Nobody(), "Post", map[string]interface{}{
			"title": "post",
			"author": map[string]interface{}{
				"__type":    "Pointer",
				"className": "Author",
				"objectId":  authors[i%2],
			},
		})
		require.NoError(t, err)
	}

	adapter.finds.Store(0)
	result, err := eng.Find(ctx, engine.Nobody(), "Post", nil, engine.QueryOptions{
		Include: []string{"author"},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 4)
	for _, post := range result.Results {
		author, ok := post["author"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "Object", author["__type"])
		assert.Equal(t, "Author", author["className"])
		assert.Contains(t, author, "name")
	}
	// One find for the posts, one batched find for all authors.
	assert.Equal(t, int64(2), adapter.finds.Load())
}

func TestIncludeNestedPathResolvesAncestors(t *testing.T) {
	eng, adapter := newCountingEngine()
	ctx := context.Background()

	author, err := eng.Create(ctx, engine.Nobody(), "Author", map[string]interface{}{"name": "ann"})
	require.NoError(t, err)
	post, err := eng.Create(ctx, engine.Nobody(), "Post", map[string]interface{}{
		"title": "post",
		"author": map[string]interface{}{
			"__type":    "Pointer",
			"className": "Author",
			"objectId":  author.Record.ObjectID,
		},
	})
	require.NoError(t, err)
	_, err = eng.Create(ctx, engine.Nobody(), "Comment", map[string]interface{}{
		"text": "nice",
		"post": map[string]interface{}{
			"__type":    "Pointer",
			"className": "Post",
			"objectId":  post.Record.ObjectID,
		},
	})
	require.NoError(t, err)

	// Asking for post.author alone must also resolve post.
	adapter.finds.Store(0)
	result, err := eng.Find(ctx, engine.Nobody(), "Comment", nil, engine.QueryOptions{
		Include: []string{"post.author"},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)

	fullPost, ok := result.Results[0]["post"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Object", fullPost["__type"])
	assert.Equal(t, "post", fullPost["title"])

	fullAuthor, ok := fullPost["author"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Object", fullAuthor["__type"])
	assert.Equal(t, "ann", fullAuthor["name"])

	// One find for the comments, one per resolved level.
	assert.Equal(t, int64(3), adapter.finds.Load())
}

func TestIncludeLeavesDanglingPointer(t *testing.T) {
	eng := newTestEngine(nil)
	ctx := context.Background()

	_, err := eng.Create(ctx, engine.Nobody(), "Post", map[string]interface{}{
		"author": map[string]interface{}{
			"__type":    "Pointer",
			"className": "Author",
			"objectId":  "missing123",
		},
	})
	require.NoError(t, err)
	// The Author class must exist for the include fetch.
	_, err = eng.Create(ctx, engine.Nobody(), "Author", map[string]interface{}{"name": "x"})
	require.NoError(t, err)

	result, err := eng.Find(ctx, engine.Nobody(), "Post", nil, engine.QueryOptions{
		Include: []string{"author"},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	author := result.Results[0]["author"].(map[string]interface{})
	assert.Equal(t, "Pointer", author["__type"])
}

func TestACLFilteringOnFind(t *testing.T) {
	eng := newTestEngine(nil)
	ctx := context.Background()

	owner, err := eng.Create(ctx, engine.Nobody(), engine.UserClass, map[string]interface{}{
		"username": "alice", "password": "secret",
	})
	require.NoError(t, err)
	ownerIdentity := engine.Identity{User: owner.Record}

	_, err = eng.Create(ctx, ownerIdentity, "Note", map[string]interface{}{
		"text": "private",
		"ACL": map[string]interface{}{
			owner.Record.ObjectID: map[string]interface{}{"read": true, "write": true},
		},
	})
	require.NoError(t, err)
	_, err = eng.Create(ctx, ownerIdentity, "Note", map[string]interface{}{"text": "public"})
	require.NoError(t, err)

	result, err := eng.Find(ctx, engine.Nobody(), "Note", nil, engine.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Results, 1)

	result, err = eng.Find(ctx, ownerIdentity, "Note", nil, engine.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Results, 2)

	result, err = eng.Find(ctx, engine.MasterIdentity(), "Note", nil, engine.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Results, 2)
}

func TestGetObjectHonorsACL(t *testing.T) {
	eng := newTestEngine(nil)
	ctx := context.Background()

	owner, err := eng.Create(ctx, engine.Nobody(), engine.UserClass, map[string]interface{}{
		"username": "carol", "password": "secret",
	})
	require.NoError(t, err)
	ownerIdentity := engine.Identity{User: owner.Record}

	note, err := eng.Create(ctx, ownerIdentity, "Note", map[string]interface{}{
		"text": "mine",
		"ACL": map[string]interface{}{
			owner.Record.ObjectID: map[string]interface{}{"read": true, "write": true},
		},
	})
	require.NoError(t, err)

	_, err = eng.GetObject(ctx, engine.Nobody(), "Note", note.Record.ObjectID, nil)
	requireAPIError(t, err, types.CodeObjectNotFound)

	out, err := eng.GetObject(ctx, ownerIdentity, "Note", note.Record.ObjectID, nil)
	require.NoError(t, err)
	assert.Equal(t, "mine", out["text"])
}

func TestUserQueriesNeverLeakCredentialFields(t *testing.T) {
	eng := newTestEngine(nil)
	ctx := context.Background()

	_, err := eng.Create(ctx, engine.Nobody(), engine.UserClass, map[string]interface{}{
		"username": "dave", "password": "hunter2",
	})
	require.NoError(t, err)

	for _, identity := range []engine.Identity{engine.Nobody(), engine.MasterIdentity()} {
		result, err := eng.Find(ctx, identity, engine.UserClass, nil, engine.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, result.Results, 1)
		user := result.Results[0]
		assert.NotContains(t, user, "password")
		assert.NotContains(t, user, "_hashed_password")
		assert.NotContains(t, user, "sessionToken")
		assert.NotContains(t, user, "_email_verify_token")
	}
}
