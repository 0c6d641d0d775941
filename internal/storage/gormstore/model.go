package gormstore

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/openbaas/corestore/internal/acl"
	"github.com/openbaas/corestore/internal/object"
	"github.com/openbaas/corestore/internal/value"
)

// ObjectRow is the relational shape of a record: one row per object, fields
// held as a JSON document. Timestamps are engine-assigned, so gorm's
// auto-stamping is disabled.
type ObjectRow struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	ClassName string         `gorm:"size:255;not null;index:idx_class_object,unique"`
	ObjectID  string         `gorm:"size:64;not null;index:idx_class_object,unique"`
	Data      datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time      `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:false"`
}

// TableName overrides the table name for ObjectRow.
func (ObjectRow) TableName() string {
	return "objects"
}

type rowDocument struct {
	Fields map[string]interface{} `json:"fields"`
	ACL    map[string]interface{} `json:"acl,omitempty"`
}

func encodeRow(rec *object.Record) (*ObjectRow, error) {
	doc := rowDocument{Fields: value.EncodeMap(rec.Fields)}
	if rec.ACL != nil {
		doc.ACL = rec.ACL.ToJSON()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &ObjectRow{
		ClassName: rec.ClassName,
		ObjectID:  rec.ObjectID,
		Data:      data,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}, nil
}

func decodeRow(row *ObjectRow) (*object.Record, error) {
	var doc rowDocument
	if err := json.Unmarshal(row.Data, &doc); err != nil {
		return nil, err
	}
	fields, err := value.DecodeMap(doc.Fields)
	if err != nil {
		return nil, err
	}
	rec := &object.Record{
		ClassName: row.ClassName,
		ObjectID:  row.ObjectID,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		Fields:    fields,
	}
	if doc.ACL != nil {
		parsed, err := acl.FromJSON(doc.ACL)
		if err != nil {
			return nil, err
		}
		rec.ACL = parsed
	}
	return rec, nil
}
