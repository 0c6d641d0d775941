// Package memstore is a mutex-guarded in-memory storage adapter. It backs
// tests and single-process deployments that do not need durability.
package memstore

import (
	"context"
	"sync"

	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/storage"
	"github.com/openbaas/corestore/internal/value"
)

// Store implements storage.Adapter over nested maps keyed by class name and
// object id.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]*object.Record
}

// New returns an empty store.
func New() *Store {
	return &Store{data: make(map[string]map[string]*object.Record)}
}

var _ storage.Adapter = (*Store)(nil)

func (s *Store) Find(ctx context.Context, className string, where storage.Predicate, opts storage.FindOptions) ([]*object.Record, error) {
	s.mu.RLock()
	class := s.data[className]
	matched := make([]*object.Record, 0, len(class))
	for _, rec := range class {
		ok, err := storage.Matches(rec, where)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		if ok {
			matched = append(matched, rec.Clone())
		}
	}
	s.mu.RUnlock()

	storage.SortRecords(matched, opts.Order)
	return storage.Paginate(matched, opts), nil
}

func (s *Store) Count(ctx context.Context, className string, where storage.Predicate) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.data[className] {
		ok, err := storage.Matches(rec, where)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *Store) Get(ctx context.Context, className, objectID string) (*object.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[className][objectID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) Create(ctx context.Context, rec *object.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	class, ok := s.data[rec.ClassName]
	if !ok {
		class = make(map[string]*object.Record)
		s.data[rec.ClassName] = class
	}
	if _, exists := class[rec.ObjectID]; exists {
		return storage.ErrDuplicateID
	}
	class[rec.ObjectID] = rec.Clone()
	return nil
}

func (s *Store) Update(ctx context.Context, className, objectID string, change storage.Change) (*object.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[className][objectID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	updated := rec.Clone()
	for path, v := range change.Set {
		updated.Set(path, value.Clone(v))
	}
	for _, path := range change.Unset {
		updated.Unset(path)
	}
	if change.ACL != nil {
		updated.ACL = change.ACL.Clone()
	}
	if !change.UpdatedAt.IsZero() {
		updated.UpdatedAt = change.UpdatedAt
	}
	s.data[className][objectID] = updated
	return updated.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, className, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[className][objectID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data[className], objectID)
	return nil
}
