// Package value defines the closed set of field value types a record can
// hold. Schema enforcement compares variant tags (plus target class for
// pointers) instead of inspecting arbitrary dynamic values.
package value

import (
	"fmt"
	"time"
)

// Type is the variant tag of a Value.
type Type int

const (
	TypeNull Type = iota
	TypeString
	TypeNumber
	TypeBool
	TypeDate
	TypePointer
	TypeRelation
	TypeFile
	TypeArray
	TypeObject
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "Null"
	case TypeString:
		return "String"
	case TypeNumber:
		return "Number"
	case TypeBool:
		return "Boolean"
	case TypeDate:
		return "Date"
	case TypePointer:
		return "Pointer"
	case TypeRelation:
		return "Relation"
	case TypeFile:
		return "File"
	case TypeArray:
		return "Array"
	case TypeObject:
		return "Object"
	}
	return "Unknown"
}

// Value is a sealed interface over the closed variant set. Only types in
// this package implement it, which keeps type switches exhaustive.
type Value interface {
	Type() Type
	valueNode()
}

type Null struct{}

type String string

type Number float64

type Bool bool

// Date is a timestamp value, always handled in UTC.
type Date time.Time

// Pointer references another record by class and id without eager resolution.
type Pointer struct {
	ClassName string
	ObjectID  string
}

// Relation marks a many-to-many reference set rooted at a field.
type Relation struct {
	ClassName string
}

// File references an uploaded file by name and URL.
type File struct {
	Name string
	URL  string
}

// Array is an ordered sequence of values.
type Array []Value

// Object is a nested mapping of field name to value.
type Object map[string]Value

// Delete is the explicit unset operation ({"__op":"Delete"}). It is not a
// storable value; the write pipeline converts it into a field removal.
type Delete struct{}

func (Null) Type() Type     { return TypeNull }
func (String) Type() Type   { return TypeString }
func (Number) Type() Type   { return TypeNumber }
func (Bool) Type() Type     { return TypeBool }
func (Date) Type() Type     { return TypeDate }
func (Pointer) Type() Type  { return TypePointer }
func (Relation) Type() Type { return TypeRelation }
func (File) Type() Type     { return TypeFile }
func (Array) Type() Type    { return TypeArray }
func (Object) Type() Type   { return TypeObject }
func (Delete) Type() Type   { return TypeNull }

func (Null) valueNode()     {}
func (String) valueNode()   {}
func (Number) valueNode()   {}
func (Bool) valueNode()     {}
func (Date) valueNode()     {}
func (Pointer) valueNode()  {}
func (Relation) valueNode() {}
func (File) valueNode()     {}
func (Array) valueNode()    {}
func (Object) valueNode()   {}
func (Delete) valueNode()   {}

// Time returns the date as time.Time in UTC.
func (d Date) Time() time.Time { return time.Time(d).UTC() }

// Equal reports deep equality of two values.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Date:
		bv, ok := b.(Date)
		return ok && av.Time().Equal(bv.Time())
	case Pointer:
		bv, ok := b.(Pointer)
		return ok && av == bv
	case Relation:
		bv, ok := b.(Relation)
		return ok && av == bv
	case File:
		bv, ok := b.(File)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			ov, present := bv[k]
			if !present || !Equal(v, ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two scalar values of the same variant. It returns an error
// for variants without a defined ordering.
func Compare(a, b Value) (int, error) {
	switch av := a.(type) {
	case String:
		if bv, ok := b.(String); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			}
			return 0, nil
		}
	case Number:
		if bv, ok := b.(Number); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			}
			return 0, nil
		}
	case Date:
		if bv, ok := b.(Date); ok {
			at, bt := av.Time(), bv.Time()
			switch {
			case at.Before(bt):
				return -1, nil
			case at.After(bt):
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, fmt.Errorf("values of types %s and %s are not comparable", a.Type(), b.Type())
}

// Clone returns a deep copy of v. Scalars are returned as-is.
func Clone(v Value) Value {
	switch tv := v.(type) {
	case Array:
		out := make(Array, len(tv))
		for i, item := range tv {
			out[i] = Clone(item)
		}
		return out
	case Object:
		out := make(Object, len(tv))
		for k, item := range tv {
			out[k] = Clone(item)
		}
		return out
	default:
		return v
	}
}
