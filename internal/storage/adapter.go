// Package storage defines the adapter contract between the engine and its
// backing stores, plus the predicate tree adapters execute. Adapters are
// capability-limited executors: one that cannot execute a predicate returns
// ErrUnsupportedPredicate instead of silently degrading.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/openbaas/corestore/internal/acl"
	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/value"
)

var (
	// ErrNotFound is returned when a targeted record does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrUnsupportedPredicate is returned by adapters that cannot execute a
	// predicate; the engine surfaces it as an invalid-query error.
	ErrUnsupportedPredicate = errors.New("unsupported predicate for this adapter")
	// ErrDuplicateID is returned when creating a record whose id already exists.
	ErrDuplicateID = errors.New("duplicate object id")
)

// CompareOp is a scalar comparison operator.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
)

// Predicate is a sealed filter tree over record fields. Only types in this
// package implement it, keeping adapter type switches exhaustive.
type Predicate interface {
	predicateNode()
}

// And matches records satisfying every child predicate. An empty And
// matches everything.
type And []Predicate

// Or matches records satisfying at least one child predicate.
type Or []Predicate

// Compare matches records whose field (dot paths descend nested objects)
// relates to Value under Op. Missing fields never match, except under
// OpNotEqual.
type Compare struct {
	Field string
	Op    CompareOp
	Value value.Value
}

// In matches records whose field value is (or, negated, is not) one of Values.
type In struct {
	Field  string
	Values []value.Value
	Negate bool
}

// Exists matches on field presence.
type Exists struct {
	Field   string
	Present bool
}

func (And) predicateNode()     {}
func (Or) predicateNode()      {}
func (Compare) predicateNode() {}
func (In) predicateNode()      {}
func (Exists) predicateNode()  {}

// Sort orders results by a field.
type Sort struct {
	Field string
	Desc  bool
}

// FindOptions carries pagination and ordering for Find. Limit < 0 means no
// limit at this layer; the engine applies its own default.
type FindOptions struct {
	Limit int
	Skip  int
	Order []Sort
}

// UnlimitedFind returns options with no limit, skip or order.
func UnlimitedFind() FindOptions { return FindOptions{Limit: -1} }

// Change is the atomic mutation applied by Update. Set keys may be dot
// paths into nested objects; Unset lists fields to remove; a non-nil ACL
// replaces the stored ACL.
type Change struct {
	Set       value.Object
	Unset     []string
	ACL       *acl.ACL
	UpdatedAt time.Time
}

// Adapter is the backend-specific executor for record CRUD and predicate
// queries. Implementations must be safe for concurrent use.
type Adapter interface {
	// Find returns the records of className matching where, ordered and
	// paginated per opts.
	Find(ctx context.Context, className string, where Predicate, opts FindOptions) ([]*object.Record, error)

	// Count returns the number of records matching where, independent of
	// any limit.
	Count(ctx context.Context, className string, where Predicate) (int64, error)

	// Get fetches one record by id, or ErrNotFound.
	Get(ctx context.Context, className, objectID string) (*object.Record, error)

	// Create persists a new record. The record carries its generated id,
	// timestamps and ACL.
	Create(ctx context.Context, rec *object.Record) error

	// Update applies a Change to one record atomically and returns the
	// stored state, or ErrNotFound.
	Update(ctx context.Context, className, objectID string, change Change) (*object.Record, error)

	// Delete removes one record, or returns ErrNotFound.
	Delete(ctx context.Context, className, objectID string) error
}
