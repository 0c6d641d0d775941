package engine

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/openbaas/corestore/internal/schema"
	"github.com/openbaas/corestore/internal/storage"
	"github.com/openbaas/corestore/internal/types"
	"github.com/openbaas/corestore/internal/value"
)

// DefaultQueryLimit is applied when a find sets no explicit limit.
const DefaultQueryLimit = 100

// QueryOptions shapes a Find beyond its where clause. A nil or negative
// Limit means the default; an explicit zero suppresses result fetching
// entirely, which combined with Count gives a pure count query.
type QueryOptions struct {
	Limit   *int
	Skip    int
	Order   []storage.Sort
	Count   bool
	Include []string
}

// Limited is a convenience for building QueryOptions literals.
func Limited(n int) *int { return &n }

// FindResult carries the encoded matches and, when requested, the total
// count of matching objects independent of limit and skip.
type FindResult struct {
	Results []map[string]interface{}
	Count   *int64
}

func invalidQuery(format string, args ...interface{}) error {
	return types.NewAPIErrorf(types.CodeInvalidQuery, format, args...)
}

// ParseWhere translates a JSON where clause into a storage predicate. A
// nil or empty clause matches everything.
func ParseWhere(raw map[string]interface{}) (storage.Predicate, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	preds := make(storage.And, 0, len(raw))
	for key, cond := range raw {
		switch key {
		case "$or", "$and":
			sub, err := parseCompound(key, cond)
			if err != nil {
				return nil, err
			}
			preds = append(preds, sub)
		default:
			sub, err := parseFieldCondition(key, cond)
			if err != nil {
				return nil, err
			}
			preds = append(preds, sub...)
		}
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return preds, nil
}

func parseCompound(op string, cond interface{}) (storage.Predicate, error) {
	list, ok := cond.([]interface{})
	if !ok || len(list) == 0 {
		return nil, invalidQuery("%s must be a non-empty array of queries", op)
	}
	subs := make([]storage.Predicate, 0, len(list))
	for _, el := range list {
		m, ok := el.(map[string]interface{})
		if !ok {
			return nil, invalidQuery("%s elements must be query objects", op)
		}
		sub, err := ParseWhere(m)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			subs = append(subs, sub)
		}
	}
	if op == "$or" {
		return storage.Or(subs), nil
	}
	return storage.And(subs), nil
}

// parseFieldCondition handles one field of a where clause: either an
// operator map or a bare value meaning equality.
func parseFieldCondition(field string, cond interface{}) ([]storage.Predicate, error) {
	m, isMap := cond.(map[string]interface{})
	if isMap && isConstraintMap(m) {
		var preds []storage.Predicate
		for op, operand := range m {
			p, err := parseOperator(field, op, operand)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		return preds, nil
	}
	v, err := value.Decode(cond)
	if err != nil {
		return nil, invalidQuery("invalid value for %s: %v", field, err)
	}
	return []storage.Predicate{storage.Compare{Field: field, Op: storage.OpEqual, Value: v}}, nil
}

// isConstraintMap distinguishes {"$gt": 5} from typed values such as
// {"__type": "Date", ...}, which mean equality.
func isConstraintMap(m map[string]interface{}) bool {
	if _, typed := m["__type"]; typed {
		return false
	}
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

var compareOps = map[string]storage.CompareOp{
	"$eq":  storage.OpEqual,
	"$ne":  storage.OpNotEqual,
	"$lt":  storage.OpLessThan,
	"$lte": storage.OpLessThanOrEqual,
	"$gt":  storage.OpGreaterThan,
	"$gte": storage.OpGreaterThanOrEqual,
}

func parseOperator(field, op string, operand interface{}) (storage.Predicate, error) {
	if cmpOp, ok := compareOps[op]; ok {
		v, err := value.Decode(operand)
		if err != nil {
			return nil, invalidQuery("invalid operand for %s on %s: %v", op, field, err)
		}
		return storage.Compare{Field: field, Op: cmpOp, Value: v}, nil
	}
	switch op {
	case "$in", "$nin":
		list, ok := operand.([]interface{})
		if !ok {
			return nil, invalidQuery("%s on %s requires an array", op, field)
		}
		values := make([]value.Value, 0, len(list))
		for _, el := range list {
			v, err := value.Decode(el)
			if err != nil {
				return nil, invalidQuery("invalid operand for %s on %s: %v", op, field, err)
			}
			values = append(values, v)
		}
		return storage.In{Field: field, Values: values, Negate: op == "$nin"}, nil
	case "$exists":
		b, ok := operand.(bool)
		if !ok {
			return nil, invalidQuery("$exists on %s requires a boolean", field)
		}
		return storage.Exists{Field: field, Present: b}, nil
	}
	return nil, invalidQuery("bad constraint: %s", op)
}

// ParseOrder translates a comma-separated order string ("-score,name")
// into sort descriptors.
func ParseOrder(order string) []storage.Sort {
	if order == "" {
		return nil
	}
	var sorts []storage.Sort
	for _, part := range strings.Split(order, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "-") {
			sorts = append(sorts, storage.Sort{Field: part[1:], Desc: true})
		} else {
			sorts = append(sorts, storage.Sort{Field: part})
		}
	}
	return sorts
}

// Find executes a query against one class and returns caller-facing JSON.
func (e *Engine) Find(ctx context.Context, identity Identity, className string, where map[string]interface{}, opts QueryOptions) (*FindResult, error) {
	if !validClassName(className) {
		return nil, types.NewAPIErrorf(types.CodeInvalidClassName, "invalid class name: %s", className)
	}
	if err := e.checkClassPermission(identity, className, schema.ActionFind); err != nil {
		return nil, err
	}
	if !e.schema.Has(className) {
		if !e.classCreationAllowed(identity, className) {
			return nil, types.NewAPIErrorf(types.CodeOperationForbidden,
				"This user is not allowed to access non-existent class: %s", className)
		}
		result := &FindResult{Results: []map[string]interface{}{}}
		if opts.Count {
			var zero int64
			result.Count = &zero
		}
		return result, nil
	}

	pred, err := ParseWhere(where)
	if err != nil {
		return nil, err
	}

	result := &FindResult{Results: []map[string]interface{}{}}
	if opts.Count {
		n, err := e.store.Count(ctx, className, pred)
		if err != nil {
			return nil, mapStorageQueryError(err)
		}
		result.Count = &n
	}

	if opts.Limit != nil && *opts.Limit == 0 {
		// limit=0 is a legal query that fetches nothing; only the count,
		// if requested, touches the adapter.
		return result, nil
	}
	limit := DefaultQueryLimit
	if opts.Limit != nil && *opts.Limit > 0 {
		limit = *opts.Limit
	}

	recs, err := e.store.Find(ctx, className, pred, storage.FindOptions{
		Limit: limit,
		Skip:  opts.Skip,
		Order: opts.Order,
	})
	if err != nil {
		return nil, mapStorageQueryError(err)
	}
	recs = e.filterByACL(identity, recs)
	for _, rec := range recs {
		result.Results = append(result.Results, e.encodeRecord(identity, rec))
	}

	if len(opts.Include) > 0 {
		if err := e.resolveIncludes(ctx, identity, result.Results, opts.Include); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func mapStorageQueryError(err error) error {
	if errors.Is(err, storage.ErrUnsupportedPredicate) {
		return invalidQuery("this query is not supported: %v", err)
	}
	return err
}

// GetObject fetches a single object by id, with optional includes.
func (e *Engine) GetObject(ctx context.Context, identity Identity, className, objectID string, include []string) (map[string]interface{}, error) {
	if !validClassName(className) {
		return nil, types.NewAPIErrorf(types.CodeInvalidClassName, "invalid class name: %s", className)
	}
	if err := e.checkClassPermission(identity, className, schema.ActionGet); err != nil {
		return nil, err
	}
	rec, err := e.store.Get(ctx, className, objectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.NewAPIError(types.CodeObjectNotFound, "Object not found.")
		}
		return nil, err
	}
	if !identity.Master && !rec.ACL.CanRead(identity.principals()...) {
		return nil, types.NewAPIError(types.CodeObjectNotFound, "Object not found.")
	}
	out := e.encodeRecord(identity, rec)
	if len(include) > 0 {
		if err := e.resolveIncludes(ctx, identity, []map[string]interface{}{out}, include); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// resolveIncludes replaces pointers at the given dotted paths with full
// objects. Every ancestor of a requested path is resolved as well, so
// include=a.b fetches both a and a.b. Targets are fetched in one batch per
// class per path level, and pointers whose target is missing or unreadable
// are left as pointers.
func (e *Engine) resolveIncludes(ctx context.Context, identity Identity, results []map[string]interface{}, paths []string) error {
	sorted := expandIncludePaths(paths)

	for _, path := range sorted {
		segs := strings.Split(path, ".")
		containers := results
		for _, seg := range segs[:len(segs)-1] {
			var next []map[string]interface{}
			for _, c := range containers {
				switch v := c[seg].(type) {
				case map[string]interface{}:
					next = append(next, v)
				case []interface{}:
					for _, el := range v {
						if m, ok := el.(map[string]interface{}); ok {
							next = append(next, m)
						}
					}
				}
			}
			containers = next
		}
		leaf := segs[len(segs)-1]

		wanted := make(map[string]map[string]struct{})
		forEachPointer(containers, leaf, func(ptr map[string]interface{}) {
			class, id := pointerTarget(ptr)
			if class == "" {
				return
			}
			if wanted[class] == nil {
				wanted[class] = make(map[string]struct{})
			}
			wanted[class][id] = struct{}{}
		})
		if len(wanted) == 0 {
			continue
		}

		fetched := make(map[string]map[string]map[string]interface{})
		for class, ids := range wanted {
			idValues := make([]value.Value, 0, len(ids))
			for id := range ids {
				idValues = append(idValues, value.String(id))
			}
			recs, err := e.store.Find(ctx, class,
				storage.In{Field: "objectId", Values: idValues},
				storage.UnlimitedFind())
			if err != nil {
				return mapStorageQueryError(err)
			}
			recs = e.filterByACL(identity, recs)
			byID := make(map[string]map[string]interface{}, len(recs))
			for _, rec := range recs {
				enc := e.encodeRecord(identity, rec)
				enc["__type"] = "Object"
				enc["className"] = class
				byID[rec.ObjectID] = enc
			}
			fetched[class] = byID
		}

		for _, c := range containers {
			switch v := c[leaf].(type) {
			case map[string]interface{}:
				if full := lookupFetched(fetched, v); full != nil {
					c[leaf] = full
				}
			case []interface{}:
				for i, el := range v {
					if m, ok := el.(map[string]interface{}); ok {
						if full := lookupFetched(fetched, m); full != nil {
							v[i] = full
						}
					}
				}
			}
		}
	}
	return nil
}

// expandIncludePaths adds the ancestors of every requested path and sorts
// the result, so parents are resolved before their children.
func expandIncludePaths(paths []string) []string {
	seen := make(map[string]struct{})
	var expanded []string
	for _, path := range paths {
		segs := strings.Split(path, ".")
		for i := 1; i <= len(segs); i++ {
			prefix := strings.Join(segs[:i], ".")
			if _, ok := seen[prefix]; ok {
				continue
			}
			seen[prefix] = struct{}{}
			expanded = append(expanded, prefix)
		}
	}
	sort.Strings(expanded)
	return expanded
}

func forEachPointer(containers []map[string]interface{}, leaf string, fn func(map[string]interface{})) {
	for _, c := range containers {
		switch v := c[leaf].(type) {
		case map[string]interface{}:
			fn(v)
		case []interface{}:
			for _, el := range v {
				if m, ok := el.(map[string]interface{}); ok {
					fn(m)
				}
			}
		}
	}
}

// pointerTarget returns the class and id of an encoded pointer, or empty
// strings for anything that is not a pointer.
func pointerTarget(m map[string]interface{}) (string, string) {
	if m["__type"] != "Pointer" {
		return "", ""
	}
	class, _ := m["className"].(string)
	id, _ := m["objectId"].(string)
	if class == "" || id == "" {
		return "", ""
	}
	return class, id
}

func lookupFetched(fetched map[string]map[string]map[string]interface{}, ptr map[string]interface{}) map[string]interface{} {
	class, id := pointerTarget(ptr)
	if class == "" {
		return nil
	}
	return fetched[class][id]
}
