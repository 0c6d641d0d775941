package object_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbaas/corestore/internal/acl"
	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/value"
)

func TestDotPathAccess(t *testing.T) {
	rec := object.New("Game")
	rec.Set("state.board.turn", value.Number(3))

	v, ok := rec.Get("state.board.turn")
	require.True(t, ok)
	assert.Equal(t, value.Number(3), v)
	assert.True(t, rec.Has("state.board"))
	assert.False(t, rec.Has("state.player"))

	rec.Unset("state.board.turn")
	assert.False(t, rec.Has("state.board.turn"))
	assert.True(t, rec.Has("state.board"))
}

func TestUnsetMissingPathIsNoop(t *testing.T) {
	rec := object.New("Game")
	rec.Set("a", value.String("x"))
	rec.Unset("b.c")
	assert.True(t, rec.Has("a"))
}

func TestCloneIsDeep(t *testing.T) {
	rec := object.New("Game")
	rec.ObjectID = "abc"
	rec.Set("meta.level", value.Number(1))
	rec.ACL = acl.New()
	rec.ACL.SetReadAccess("user1", true)

	clone := rec.Clone()
	clone.Set("meta.level", value.Number(2))
	clone.ACL.SetReadAccess("user1", false)

	v, _ := rec.Get("meta.level")
	assert.Equal(t, value.Number(1), v)
	assert.True(t, rec.ACL.CanRead("user1"))
}

func TestToJSON(t *testing.T) {
	rec := object.New("Game")
	rec.ObjectID = "abc123"
	rec.CreatedAt = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	rec.UpdatedAt = rec.CreatedAt
	rec.Set("score", value.Number(10))

	out := rec.ToJSON()
	assert.Equal(t, "abc123", out["objectId"])
	assert.Equal(t, "2026-05-01T09:30:00.000Z", out["createdAt"])
	assert.Equal(t, float64(10), out["score"])
	assert.NotContains(t, out, "ACL")
}
