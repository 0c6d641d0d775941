package acl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbaas/corestore/internal/acl"
)

func TestNilACLIsOpen(t *testing.T) {
	var a *acl.ACL
	assert.True(t, a.CanRead())
	assert.True(t, a.CanWrite("anyone"))
}

func TestEmptyACLDeniesEverything(t *testing.T) {
	a := acl.New()
	assert.False(t, a.CanRead())
	assert.False(t, a.CanRead("user1"))
	assert.False(t, a.CanWrite("user1"))
}

func TestPerPrincipalGrants(t *testing.T) {
	a := acl.New()
	a.SetPublicRead(true)
	a.SetReadAccess("user1", true)
	a.SetWriteAccess("user1", true)
	a.SetReadAccess(acl.RoleKey("mods"), true)

	assert.True(t, a.CanRead())
	assert.True(t, a.CanRead("user2"))
	assert.False(t, a.CanWrite())
	assert.False(t, a.CanWrite("user2"))
	assert.True(t, a.CanWrite("user1"))
	assert.True(t, a.CanRead(acl.RoleKey("mods")))
}

func TestRevokingLastGrantRemovesEntry(t *testing.T) {
	a := acl.New()
	a.SetReadAccess("user1", true)
	a.SetReadAccess("user1", false)
	assert.False(t, a.CanRead("user1"))
	assert.Empty(t, a.ToJSON())
}

func TestJSONRoundTrip(t *testing.T) {
	a := acl.New()
	a.SetPublicRead(true)
	a.SetReadAccess("user1", true)
	a.SetWriteAccess("user1", true)

	parsed, err := acl.FromJSON(a.ToJSON())
	require.NoError(t, err)
	assert.True(t, parsed.CanRead())
	assert.True(t, parsed.CanWrite("user1"))
	assert.False(t, parsed.CanWrite("user2"))
}

func TestFromJSONRejectsBadEntry(t *testing.T) {
	_, err := acl.FromJSON(map[string]interface{}{"user1": "yes"})
	require.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	a := acl.New()
	a.SetReadAccess("user1", true)
	clone := a.Clone()
	clone.SetReadAccess("user1", false)
	assert.True(t, a.CanRead("user1"))
	assert.False(t, clone.CanRead("user1"))
}
