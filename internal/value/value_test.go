package value_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbaas/corestore/internal/value"
)

func TestDecodeScalars(t *testing.T) {
	v, err := value.Decode("hi")
	require.NoError(t, err)
	assert.Equal(t, value.String("hi"), v)

	v, err = value.Decode(float64(3))
	require.NoError(t, err)
	assert.Equal(t, value.Number(3), v)

	v, err = value.Decode(true)
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), v)

	v, err = value.Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, value.Null{}, v)
}

func TestDecodeTypedValues(t *testing.T) {
	v, err := value.Decode(map[string]interface{}{
		"__type": "Date",
		"iso":    "2026-08-01T10:00:00.000Z",
	})
	require.NoError(t, err)
	d, ok := v.(value.Date)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), d.Time())

	v, err = value.Decode(map[string]interface{}{
		"__type":    "Pointer",
		"className": "Author",
		"objectId":  "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, value.Pointer{ClassName: "Author", ObjectID: "abc123"}, v)

	v, err = value.Decode(map[string]interface{}{"__op": "Delete"})
	require.NoError(t, err)
	assert.Equal(t, value.Delete{}, v)

	_, err = value.Decode(map[string]interface{}{"__type": "Wormhole"})
	require.Error(t, err)
	_, err = value.Decode(map[string]interface{}{"__op": "Increment", "amount": float64(1)})
	require.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	raw := map[string]interface{}{
		"name":  "ann",
		"score": float64(12),
		"tags":  []interface{}{"a", "b"},
		"meta":  map[string]interface{}{"depth": float64(2)},
		"when": map[string]interface{}{
			"__type": "Date",
			"iso":    "2026-08-01T10:00:00.000Z",
		},
	}
	decoded, err := value.DecodeMap(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, value.EncodeMap(decoded))
}

func TestEqual(t *testing.T) {
	assert.True(t, value.Equal(value.Number(1), value.Number(1)))
	assert.False(t, value.Equal(value.Number(1), value.String("1")))
	assert.True(t, value.Equal(
		value.Object{"a": value.Array{value.Number(1)}},
		value.Object{"a": value.Array{value.Number(1)}},
	))
	assert.False(t, value.Equal(
		value.Object{"a": value.Number(1)},
		value.Object{"a": value.Number(1), "b": value.Number(2)},
	))
	assert.True(t, value.Equal(
		value.Pointer{ClassName: "A", ObjectID: "x"},
		value.Pointer{ClassName: "A", ObjectID: "x"},
	))
}

func TestCompare(t *testing.T) {
	n, err := value.Compare(value.Number(1), value.Number(2))
	require.NoError(t, err)
	assert.Negative(t, n)

	n, err = value.Compare(value.String("b"), value.String("a"))
	require.NoError(t, err)
	assert.Positive(t, n)

	early := value.Date(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	late := value.Date(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	n, err = value.Compare(early, late)
	require.NoError(t, err)
	assert.Negative(t, n)

	_, err = value.Compare(value.Number(1), value.String("x"))
	require.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	original := value.Object{"nested": value.Object{"a": value.Number(1)}}
	clone := value.Clone(original).(value.Object)
	clone["nested"].(value.Object)["a"] = value.Number(2)
	assert.Equal(t, value.Number(1), original["nested"].(value.Object)["a"])
}
