package storage

import (
	"sort"

	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/value"
)

// Matches evaluates a predicate against a record. It is shared by adapters
// that execute predicates in process (memstore, and the gorm adapter's
// post-scan filter). A nil predicate matches everything.
func Matches(rec *object.Record, where Predicate) (bool, error) {
	if where == nil {
		return true, nil
	}
	switch p := where.(type) {
	case And:
		for _, child := range p {
			ok, err := Matches(rec, child)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, child := range p {
			ok, err := Matches(rec, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Compare:
		return matchCompare(rec, p)
	case In:
		v, ok := lookupField(rec, p.Field)
		if !ok {
			// A missing field is "not in" any set.
			return p.Negate, nil
		}
		for _, candidate := range p.Values {
			if value.Equal(v, candidate) {
				return !p.Negate, nil
			}
		}
		return p.Negate, nil
	case Exists:
		_, ok := lookupField(rec, p.Field)
		return ok == p.Present, nil
	}
	return false, ErrUnsupportedPredicate
}

func matchCompare(rec *object.Record, p Compare) (bool, error) {
	v, ok := lookupField(rec, p.Field)
	if !ok {
		return p.Op == OpNotEqual, nil
	}
	switch p.Op {
	case OpEqual:
		return value.Equal(v, p.Value), nil
	case OpNotEqual:
		return !value.Equal(v, p.Value), nil
	}
	cmp, err := value.Compare(v, p.Value)
	if err != nil {
		// Incomparable values simply do not match an ordering constraint.
		return false, nil
	}
	switch p.Op {
	case OpLessThan:
		return cmp < 0, nil
	case OpLessThanOrEqual:
		return cmp <= 0, nil
	case OpGreaterThan:
		return cmp > 0, nil
	case OpGreaterThanOrEqual:
		return cmp >= 0, nil
	}
	return false, ErrUnsupportedPredicate
}

// lookupField resolves a field for matching. objectId, createdAt and
// updatedAt resolve to the record metadata.
func lookupField(rec *object.Record, field string) (value.Value, bool) {
	switch field {
	case "objectId":
		return value.String(rec.ObjectID), true
	case "createdAt":
		return value.Date(rec.CreatedAt), true
	case "updatedAt":
		return value.Date(rec.UpdatedAt), true
	}
	return rec.Get(field)
}

// SortRecords orders records in place by the given sort keys; unknown or
// incomparable fields keep their relative order. Shared by in-process
// adapters.
func SortRecords(recs []*object.Record, order []Sort) {
	if len(order) == 0 {
		return
	}
	less := func(a, b *object.Record) bool {
		for _, s := range order {
			av, aok := lookupField(a, s.Field)
			bv, bok := lookupField(b, s.Field)
			if !aok || !bok {
				if aok == bok {
					continue
				}
				// Records missing the field sort first.
				if s.Desc {
					return aok
				}
				return !aok
			}
			cmp, err := value.Compare(av, bv)
			if err != nil || cmp == 0 {
				continue
			}
			if s.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	}
	sort.SliceStable(recs, func(i, j int) bool { return less(recs[i], recs[j]) })
}

// Paginate applies skip and limit to an already-ordered result set.
func Paginate(recs []*object.Record, opts FindOptions) []*object.Record {
	if opts.Skip > 0 {
		if opts.Skip >= len(recs) {
			return nil
		}
		recs = recs[opts.Skip:]
	}
	if opts.Limit >= 0 && opts.Limit < len(recs) {
		recs = recs[:opts.Limit]
	}
	return recs
}
