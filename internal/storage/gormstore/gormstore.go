// Package gormstore is the gorm-backed storage adapter. It runs unchanged
// against mysql, postgres, sqlite and sqlserver; records live in a single
// JSON-document table and predicates are evaluated post-scan so behavior is
// identical across dialects.
package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/storage"
	"github.com/openbaas/corestore/internal/value"
)

// Store implements storage.Adapter on top of a *gorm.DB.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ storage.Adapter = (*Store)(nil)

// AutoMigrate creates the objects table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ObjectRow{})
}

func (s *Store) Find(ctx context.Context, className string, where storage.Predicate, opts storage.FindOptions) ([]*object.Record, error) {
	recs, err := s.scanClass(ctx, className, where)
	if err != nil {
		return nil, err
	}
	storage.SortRecords(recs, opts.Order)
	return storage.Paginate(recs, opts), nil
}

func (s *Store) Count(ctx context.Context, className string, where storage.Predicate) (int64, error) {
	recs, err := s.scanClass(ctx, className, where)
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

// scanClass streams the class rows and filters them in process. The class
// name is the only pushed-down restriction; it is the indexed column.
func (s *Store) scanClass(ctx context.Context, className string, where storage.Predicate) ([]*object.Record, error) {
	var rows []ObjectRow
	if err := s.db.WithContext(ctx).
		Where("class_name = ?", className).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	matched := make([]*object.Record, 0, len(rows))
	for i := range rows {
		rec, err := decodeRow(&rows[i])
		if err != nil {
			return nil, err
		}
		ok, err := storage.Matches(rec, where)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

func (s *Store) Get(ctx context.Context, className, objectID string) (*object.Record, error) {
	var row ObjectRow
	err := s.db.WithContext(ctx).
		Where("class_name = ? AND object_id = ?", className, objectID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return decodeRow(&row)
}

func (s *Store) Create(ctx context.Context, rec *object.Record) error {
	row, err := encodeRow(rec)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrDuplicateID
		}
		return err
	}
	return nil
}

func (s *Store) Update(ctx context.Context, className, objectID string, change storage.Change) (*object.Record, error) {
	var updated *object.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ObjectRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("class_name = ? AND object_id = ?", className, objectID).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		rec, err := decodeRow(&row)
		if err != nil {
			return err
		}
		for path, v := range change.Set {
			rec.Set(path, value.Clone(v))
		}
		for _, path := range change.Unset {
			rec.Unset(path)
		}
		if change.ACL != nil {
			rec.ACL = change.ACL.Clone()
		}
		if !change.UpdatedAt.IsZero() {
			rec.UpdatedAt = change.UpdatedAt
		}
		next, err := encodeRow(rec)
		if err != nil {
			return err
		}
		if err := tx.Model(&ObjectRow{}).
			Where("id = ?", row.ID).
			Updates(map[string]interface{}{
				"data":       next.Data,
				"updated_at": next.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, className, objectID string) error {
	res := s.db.WithContext(ctx).
		Where("class_name = ? AND object_id = ?", className, objectID).
		Delete(&ObjectRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
