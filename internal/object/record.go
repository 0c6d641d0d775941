// Package object defines the Record, the unit of storage the engine moves
// between clients, hooks and storage adapters.
package object

import (
	"strings"
	"time"

	"github.com/openbaas/corestore/internal/acl"
	"github.com/openbaas/corestore/internal/value"
)

// Record is a single persisted object of a data class. ObjectID is opaque,
// server-generated and immutable.
type Record struct {
	ClassName string
	ObjectID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	ACL       *acl.ACL
	Fields    value.Object
}

// New returns an empty record of the given class.
func New(className string) *Record {
	return &Record{ClassName: className, Fields: value.Object{}}
}

// Get returns the value at a dot path ("a.b.c" descends nested objects).
func (r *Record) Get(path string) (value.Value, bool) {
	return LookupPath(r.Fields, path)
}

// Set assigns a field value. Dot paths create intermediate objects.
func (r *Record) Set(path string, v value.Value) {
	setPath(r.Fields, path, v)
}

// Unset removes a field. Dot paths descend nested objects.
func (r *Record) Unset(path string) {
	unsetPath(r.Fields, path)
}

// Has reports whether a field is present.
func (r *Record) Has(path string) bool {
	_, ok := r.Get(path)
	return ok
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	fields := make(value.Object, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = value.Clone(v)
	}
	return &Record{
		ClassName: r.ClassName,
		ObjectID:  r.ObjectID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		ACL:       r.ACL.Clone(),
		Fields:    fields,
	}
}

// LookupPath resolves a dot path inside a field map.
func LookupPath(fields value.Object, path string) (value.Value, bool) {
	parts := strings.Split(path, ".")
	var cur value.Value = fields
	for _, part := range parts {
		obj, ok := cur.(value.Object)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(fields value.Object, path string, v value.Value) {
	parts := strings.Split(path, ".")
	cur := fields
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(value.Object)
		if !ok {
			next = value.Object{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func unsetPath(fields value.Object, path string) {
	parts := strings.Split(path, ".")
	cur := fields
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(value.Object)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// ToJSON renders the record in its wire representation: encoded fields plus
// objectId, createdAt, updatedAt and ACL. Redaction is the caller's concern.
func (r *Record) ToJSON() map[string]interface{} {
	out := value.EncodeMap(r.Fields)
	out["objectId"] = r.ObjectID
	if !r.CreatedAt.IsZero() {
		out["createdAt"] = r.CreatedAt.UTC().Format(value.ISO8601)
	}
	if !r.UpdatedAt.IsZero() {
		out["updatedAt"] = r.UpdatedAt.UTC().Format(value.ISO8601)
	}
	if r.ACL != nil {
		out["ACL"] = r.ACL.ToJSON()
	}
	return out
}
