// Package acl implements per-record access control lists. An ACL grants
// read and write independently to the public ("*"), to individual users by
// object id, and to roles ("role:<name>").
package acl

import "fmt"

// PublicKey is the ACL entry key granting access to unauthenticated callers.
const PublicKey = "*"

// Entry holds the read/write grants for one principal.
type Entry struct {
	Read  bool `json:"read,omitempty"`
	Write bool `json:"write,omitempty"`
}

// ACL maps principal keys to their grants. A nil *ACL means the record is
// publicly readable and writable.
type ACL struct {
	entries map[string]Entry
}

// New returns an empty ACL (nobody can read or write).
func New() *ACL {
	return &ACL{entries: make(map[string]Entry)}
}

// PublicReadWrite returns an ACL granting everything to everyone.
func PublicReadWrite() *ACL {
	a := New()
	a.SetPublicRead(true)
	a.SetPublicWrite(true)
	return a
}

// RoleKey builds the entry key for a role name.
func RoleKey(name string) string {
	return fmt.Sprintf("role:%s", name)
}

func (a *ACL) set(key string, read, write *bool) {
	e := a.entries[key]
	if read != nil {
		e.Read = *read
	}
	if write != nil {
		e.Write = *write
	}
	if !e.Read && !e.Write {
		delete(a.entries, key)
		return
	}
	a.entries[key] = e
}

func (a *ACL) SetPublicRead(allowed bool) { a.set(PublicKey, &allowed, nil) }

func (a *ACL) SetPublicWrite(allowed bool) { a.set(PublicKey, nil, &allowed) }

func (a *ACL) SetReadAccess(principal string, allowed bool) { a.set(principal, &allowed, nil) }

func (a *ACL) SetWriteAccess(principal string, allowed bool) { a.set(principal, nil, &allowed) }

// CanRead reports whether any of the given principal keys may read.
// A nil ACL is open.
func (a *ACL) CanRead(principals ...string) bool {
	if a == nil {
		return true
	}
	if a.entries[PublicKey].Read {
		return true
	}
	for _, p := range principals {
		if a.entries[p].Read {
			return true
		}
	}
	return false
}

// CanWrite reports whether any of the given principal keys may write.
// A nil ACL is open.
func (a *ACL) CanWrite(principals ...string) bool {
	if a == nil {
		return true
	}
	if a.entries[PublicKey].Write {
		return true
	}
	for _, p := range principals {
		if a.entries[p].Write {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Cloning nil yields nil.
func (a *ACL) Clone() *ACL {
	if a == nil {
		return nil
	}
	out := New()
	for k, e := range a.entries {
		out.entries[k] = e
	}
	return out
}

// ToJSON renders the ACL in the {"principal":{"read":bool,"write":bool}} wire form.
func (a *ACL) ToJSON() map[string]interface{} {
	if a == nil {
		return nil
	}
	out := make(map[string]interface{}, len(a.entries))
	for k, e := range a.entries {
		grants := make(map[string]interface{}, 2)
		if e.Read {
			grants["read"] = true
		}
		if e.Write {
			grants["write"] = true
		}
		out[k] = grants
	}
	return out
}

// FromJSON parses the wire form produced by ToJSON.
func FromJSON(raw map[string]interface{}) (*ACL, error) {
	a := New()
	for principal, grants := range raw {
		gm, ok := grants.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid ACL entry for %q", principal)
		}
		e := Entry{}
		if r, ok := gm["read"].(bool); ok {
			e.Read = r
		}
		if w, ok := gm["write"].(bool); ok {
			e.Write = w
		}
		if e.Read || e.Write {
			a.entries[principal] = e
		}
	}
	return a, nil
}
