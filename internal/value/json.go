package value

import (
	"fmt"
	"time"
)

// ISO8601 is the wire format for Date values.
const ISO8601 = "2006-01-02T15:04:05.000Z07:00"

// Decode converts a JSON-decoded interface{} into a Value, recognizing the
// __type convention for dates, pointers, files and relations, and the
// __op:Delete unset operation.
func Decode(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(v), nil
	case float64:
		return Number(v), nil
	case int:
		return Number(v), nil
	case int64:
		return Number(v), nil
	case bool:
		return Bool(v), nil
	case []interface{}:
		out := make(Array, 0, len(v))
		for _, item := range v {
			dv, err := Decode(item)
			if err != nil {
				return nil, err
			}
			out = append(out, dv)
		}
		return out, nil
	case map[string]interface{}:
		if op, ok := v["__op"].(string); ok {
			if op == "Delete" {
				return Delete{}, nil
			}
			return nil, fmt.Errorf("unsupported operation: %s", op)
		}
		if typ, ok := v["__type"].(string); ok {
			return decodeTyped(typ, v)
		}
		out := make(Object, len(v))
		for k, item := range v {
			dv, err := Decode(item)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot decode value of type %T", raw)
}

func decodeTyped(typ string, v map[string]interface{}) (Value, error) {
	switch typ {
	case "Date":
		iso, _ := v["iso"].(string)
		t, err := time.Parse(time.RFC3339, iso)
		if err != nil {
			return nil, fmt.Errorf("invalid date: %q", iso)
		}
		return Date(t.UTC()), nil
	case "Pointer":
		className, _ := v["className"].(string)
		objectID, _ := v["objectId"].(string)
		if className == "" || objectID == "" {
			return nil, fmt.Errorf("pointer requires className and objectId")
		}
		return Pointer{ClassName: className, ObjectID: objectID}, nil
	case "Relation":
		className, _ := v["className"].(string)
		return Relation{ClassName: className}, nil
	case "File":
		name, _ := v["name"].(string)
		url, _ := v["url"].(string)
		return File{Name: name, URL: url}, nil
	}
	return nil, fmt.Errorf("unknown __type: %s", typ)
}

// DecodeMap decodes a client-supplied field map.
func DecodeMap(raw map[string]interface{}) (Object, error) {
	out := make(Object, len(raw))
	for k, v := range raw {
		dv, err := Decode(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = dv
	}
	return out, nil
}

// Encode converts a Value back into the JSON-encodable wire representation.
func Encode(v Value) interface{} {
	switch tv := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(tv)
	case Number:
		return float64(tv)
	case Bool:
		return bool(tv)
	case Date:
		return map[string]interface{}{
			"__type": "Date",
			"iso":    tv.Time().Format(ISO8601),
		}
	case Pointer:
		return map[string]interface{}{
			"__type":    "Pointer",
			"className": tv.ClassName,
			"objectId":  tv.ObjectID,
		}
	case Relation:
		return map[string]interface{}{
			"__type":    "Relation",
			"className": tv.ClassName,
		}
	case File:
		return map[string]interface{}{
			"__type": "File",
			"name":   tv.Name,
			"url":    tv.URL,
		}
	case Array:
		out := make([]interface{}, len(tv))
		for i, item := range tv {
			out[i] = Encode(item)
		}
		return out
	case Object:
		out := make(map[string]interface{}, len(tv))
		for k, item := range tv {
			out[k] = Encode(item)
		}
		return out
	case Delete:
		return map[string]interface{}{"__op": "Delete"}
	}
	return nil
}

// EncodeMap encodes a field map into its wire representation.
func EncodeMap(fields Object) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = Encode(v)
	}
	return out
}
