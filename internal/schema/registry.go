// Package schema implements the per-class schema registry. Field types are
// inferred lazily from the first write and enforced on every write after
// that; extension is additive only.
package schema

import (
	"sync"

	"github.com/openbaas/corestore/internal/types"
	"github.com/openbaas/corestore/internal/value"
)

// FieldType is the declared type of a class field. TargetClass is set for
// pointers and relations only.
type FieldType struct {
	Kind        value.Type
	TargetClass string
}

func (f FieldType) String() string {
	if f.TargetClass != "" {
		return f.Kind.String() + "<" + f.TargetClass + ">"
	}
	return f.Kind.String()
}

// Action is a class-level operation gated by permissions.
type Action string

const (
	ActionGet    Action = "get"
	ActionFind   Action = "find"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Level is who a class-level permission admits.
type Level int

const (
	// LevelPublic admits any caller, authenticated or not.
	LevelPublic Level = iota
	// LevelAuthenticated admits callers with a resolved user.
	LevelAuthenticated
	// LevelNobody admits only the master identity.
	LevelNobody
)

// Permissions holds the class-level permission flags. The zero value is
// fully public, matching the default for lazily created classes.
type Permissions struct {
	Get    Level
	Find   Level
	Create Level
	Update Level
	Delete Level
}

func (p Permissions) level(action Action) Level {
	switch action {
	case ActionGet:
		return p.Get
	case ActionFind:
		return p.Find
	case ActionCreate:
		return p.Create
	case ActionUpdate:
		return p.Update
	case ActionDelete:
		return p.Delete
	}
	return LevelNobody
}

// Admits reports whether the permission level for action admits a caller
// with the given authentication state. Master callers bypass this check
// entirely and must not call it.
func (p Permissions) Admits(action Action, authenticated bool) bool {
	switch p.level(action) {
	case LevelPublic:
		return true
	case LevelAuthenticated:
		return authenticated
	}
	return false
}

type classSchema struct {
	mu     sync.Mutex
	fields map[string]FieldType
	perms  Permissions
}

// Registry holds all class schemas for one engine instance. Conflicting
// first-definitions of a field are serialized per class, so one writer wins
// and the rest either match or error.
type Registry struct {
	mu      sync.Mutex
	classes map[string]*classSchema
}

// NewRegistry returns a registry pre-seeded with the system classes, which
// always exist regardless of the class-creation policy.
func NewRegistry() *Registry {
	r := &Registry{classes: make(map[string]*classSchema)}
	r.AddClassIfNotExists("_User", map[string]FieldType{
		"username":      {Kind: value.TypeString},
		"email":         {Kind: value.TypeString},
		"emailVerified": {Kind: value.TypeBool},
		"authData":      {Kind: value.TypeObject},
	})
	r.AddClassIfNotExists("_Session", map[string]FieldType{
		"sessionToken": {Kind: value.TypeString},
		"user":         {Kind: value.TypePointer, TargetClass: "_User"},
		"createdWith":  {Kind: value.TypeObject},
		"expiresAt":    {Kind: value.TypeDate},
	})
	return r
}

// Has reports whether a class exists.
func (r *Registry) Has(className string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.classes[className]
	return ok
}

// Get returns a copy of the class field map, or false for an unknown class.
func (r *Registry) Get(className string) (map[string]FieldType, bool) {
	r.mu.Lock()
	cs, ok := r.classes[className]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make(map[string]FieldType, len(cs.fields))
	for k, v := range cs.fields {
		out[k] = v
	}
	return out, true
}

// Permissions returns the class-level permissions. Unknown classes get the
// zero (fully public) permissions so the caller can apply its own
// non-existent-class policy.
func (r *Registry) Permissions(className string) Permissions {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cs, ok := r.classes[className]; ok {
		return cs.perms
	}
	return Permissions{}
}

// SetPermissions replaces the class-level permissions, creating the class
// if it does not exist.
func (r *Registry) SetPermissions(className string, perms Permissions) {
	cs := r.class(className, true)
	cs.mu.Lock()
	cs.perms = perms
	cs.mu.Unlock()
}

// AddClassIfNotExists registers a class with the given fields. It returns
// true when the class was created by this call.
func (r *Registry) AddClassIfNotExists(className string, fields map[string]FieldType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[className]; ok {
		return false
	}
	fs := make(map[string]FieldType, len(fields))
	for k, v := range fields {
		fs[k] = v
	}
	r.classes[className] = &classSchema{fields: fs}
	return true
}

func (r *Registry) class(className string, create bool) *classSchema {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.classes[className]
	if !ok && create {
		cs = &classSchema{fields: make(map[string]FieldType)}
		r.classes[className] = cs
	}
	return cs
}

// EnforceOrExtend validates a candidate field map against the class schema.
// Unknown fields with a non-null value extend the schema; known fields must
// match the stored type exactly (pointers must also match target class).
// For an unknown class, allowCreate=false fails with OPERATION_FORBIDDEN
// and allowCreate=true creates the class from the candidate's types.
func (r *Registry) EnforceOrExtend(className string, fields value.Object, allowCreate bool) error {
	cs := r.class(className, false)
	if cs == nil {
		if !allowCreate {
			return types.NewAPIErrorf(types.CodeOperationForbidden,
				"This user is not allowed to access non-existent class: %s", className)
		}
		cs = r.class(className, true)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	for name, v := range fields {
		ft, ok := inferType(v)
		if !ok {
			// Nulls and unsets carry no type information.
			continue
		}
		stored, exists := cs.fields[name]
		if !exists {
			cs.fields[name] = ft
			continue
		}
		if stored != ft {
			return types.NewAPIErrorf(types.CodeIncorrectType,
				"schema mismatch for %s.%s; expected %s but got %s",
				className, name, stored, ft)
		}
	}
	return nil
}

func inferType(v value.Value) (FieldType, bool) {
	switch tv := v.(type) {
	case nil, value.Null, value.Delete:
		return FieldType{}, false
	case value.Pointer:
		return FieldType{Kind: value.TypePointer, TargetClass: tv.ClassName}, true
	case value.Relation:
		return FieldType{Kind: value.TypeRelation, TargetClass: tv.ClassName}, true
	default:
		return FieldType{Kind: v.Type()}, true
	}
}
