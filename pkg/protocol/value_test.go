package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueParseAndKinds(t *testing.T) {
	v, err := ParseValue([]byte(`{"a":1,"b":"x","c":[true,null],"d":2.5}`))
	require.NoError(t, err)
	require.Equal(t, KindObject, v.Kind())

	a, ok := v.Field("a")
	require.True(t, ok)
	n, ok := a.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(1), n)

	b, _ := v.Field("b")
	s, ok := b.AsString()
	require.True(t, ok)
	assert.Equal(t, "x", s)

	c, _ := v.Field("c")
	items, ok := c.Items()
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, KindBool, items[0].Kind())
	assert.True(t, items[1].IsNull())

	d, _ := v.Field("d")
	f, ok := d.AsFloat64()
	require.True(t, ok)
	assert.Equal(t, 2.5, f)
	_, ok = d.AsInt64()
	assert.False(t, ok, "2.5 must not be integral")
}

func TestValueIntegralFloatIsInt(t *testing.T) {
	v, err := ParseValue([]byte(`3.0`))
	require.NoError(t, err)
	n, ok := v.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(3), n)
}

func TestValueNumberPrecision(t *testing.T) {
	v, err := ParseValue([]byte(`9007199254740991`))
	require.NoError(t, err)
	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `9007199254740991`, string(out))
}

func TestFromGoRetainsNative(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	v, err := FromGo(id)
	require.NoError(t, err)
	assert.Equal(t, KindString, v.Kind())
	assert.Equal(t, id, v.Native())

	s, _ := v.AsString()
	assert.Equal(t, id.String(), s)

	ts := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tv, err := FromGo(ts)
	require.NoError(t, err)
	assert.Equal(t, KindString, tv.Kind())
	assert.Equal(t, ts, tv.Native())
}

func TestFromGoContainers(t *testing.T) {
	v, err := FromGo(map[string]interface{}{
		"n":    42,
		"list": []interface{}{"a", 1},
	})
	require.NoError(t, err)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":42,"list":["a",1]}`, string(out))
}

func TestValueRoundTrip(t *testing.T) {
	raw := `{"arr":[1,"two",false,null],"nested":{"x":1.25}}`
	v, err := ParseValue([]byte(raw))
	require.NoError(t, err)
	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}
