package schema

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/conduitmcp/conduit/pkg/errors"
	"github.com/conduitmcp/conduit/pkg/protocol"
)

func mustParse(t *testing.T, raw string) map[string]protocol.Value {
	t.Helper()
	v, err := protocol.ParseValue([]byte(raw))
	require.NoError(t, err)
	fields, ok := v.Fields()
	require.True(t, ok)
	return fields
}

func TestCoerceArgumentsHappyPath(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{
		"a": Int(),
		"b": Int(),
	})

	out, err := CoerceArguments("add", obj, mustParse(t, `{"a": 2, "b": 3}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), out["a"])
	assert.Equal(t, int64(3), out["b"])
}

func TestCoerceIntRejectsString(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{"a": Int(), "b": Int()})

	_, err := CoerceArguments("add", obj, mustParse(t, `{"a": "not_a_number", "b": 3}`))
	require.Error(t, err)

	fe, ok := mcperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, mcperrors.CategoryBusiness, fe.Category())

	data, ok := fe.Data().(mcperrors.ArgumentErrorData)
	require.True(t, ok)
	assert.Equal(t, "add", data.Tool)
	assert.Equal(t, "a", data.Parameter)
	assert.Equal(t, "Int", data.Expected)
	assert.Equal(t, "not_a_number", data.Actual)
}

func TestCoerceIntAcceptsIntegralFloat(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{"a": Int()})

	out, err := CoerceArguments("add", obj, mustParse(t, `{"a": 3.0}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), out["a"])

	_, err = CoerceArguments("add", obj, mustParse(t, `{"a": 3.5}`))
	require.Error(t, err)
}

func TestCoerceDefaultsAppliedOnAbsence(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{
		"a": Int(),
		"b": Int().WithDefault(10),
	})

	out, err := CoerceArguments("add", obj, mustParse(t, `{"a": 1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(10), out["b"])
}

func TestCoerceMissingRequired(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{"a": Int(), "b": Int()})

	_, err := CoerceArguments("add", obj, mustParse(t, `{"a": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required argument")
	assert.Contains(t, err.Error(), `"b"`)
}

func TestCoerceOptionalNullEqualsAbsence(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{
		"tag": String().AsOptional(),
	})

	out, err := CoerceArguments("label", obj, mustParse(t, `{"tag": null}`))
	require.NoError(t, err)
	_, present := out["tag"]
	assert.False(t, present)

	out, err = CoerceArguments("label", obj, mustParse(t, `{}`))
	require.NoError(t, err)
	_, present = out["tag"]
	assert.False(t, present)
}

func TestCoerceEnumCaseSensitive(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{"color": Enum("red", "green", "blue")})

	out, err := CoerceArguments("paint", obj, mustParse(t, `{"color": "red"}`))
	require.NoError(t, err)
	assert.Equal(t, "red", out["color"])

	_, err = CoerceArguments("paint", obj, mustParse(t, `{"color": "Red"}`))
	require.Error(t, err)
	fe, ok := mcperrors.As(err)
	require.True(t, ok)
	data := fe.Data().(mcperrors.ArgumentErrorData)
	assert.Equal(t, "Enum(red|green|blue)", data.Expected)
}

func TestCoerceArrayElementWise(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{"xs": ArrayOf(Int())})

	out, err := CoerceArguments("sum", obj, mustParse(t, `{"xs": [1, 2, 3]}`))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, out["xs"])

	// The failing element reports its own type name, not the array's.
	_, err = CoerceArguments("sum", obj, mustParse(t, `{"xs": [1, "two", 3]}`))
	require.Error(t, err)
	fe, ok := mcperrors.As(err)
	require.True(t, ok)
	data := fe.Data().(mcperrors.ArgumentErrorData)
	assert.Equal(t, "Int", data.Expected)
}

func TestCoerceUUID(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{"id": UUID()})

	id := uuid.New()
	out, err := CoerceArguments("lookup", obj, mustParse(t, `{"id": "`+id.String()+`"}`))
	require.NoError(t, err)
	assert.Equal(t, id, out["id"])

	// Native in-process values pass through without re-encoding.
	native, err := protocol.FromGo(id)
	require.NoError(t, err)
	out, err = CoerceArguments("lookup", obj, map[string]protocol.Value{"id": native})
	require.NoError(t, err)
	assert.Equal(t, id, out["id"])

	_, err = CoerceArguments("lookup", obj, mustParse(t, `{"id": "not-a-uuid"}`))
	require.Error(t, err)
	fe, _ := mcperrors.As(err)
	assert.Equal(t, "UUID", fe.Data().(mcperrors.ArgumentErrorData).Expected)
}

func TestCoerceDate(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{"at": Date()})

	out, err := CoerceArguments("schedule", obj, mustParse(t, `{"at": "2026-08-23T10:30:00Z"}`))
	require.NoError(t, err)
	ts := out["at"].(time.Time)
	assert.Equal(t, 2026, ts.Year())

	// Numeric epoch seconds are accepted too.
	out, err = CoerceArguments("schedule", obj, mustParse(t, `{"at": 1700000000}`))
	require.NoError(t, err)
	ts = out["at"].(time.Time)
	assert.Equal(t, int64(1700000000), ts.Unix())

	// Native time.Time passes through.
	now := time.Now()
	native, err := protocol.FromGo(now)
	require.NoError(t, err)
	out, err = CoerceArguments("schedule", obj, map[string]protocol.Value{"at": native})
	require.NoError(t, err)
	assert.True(t, out["at"].(time.Time).Equal(now))
}

func TestCoerceBytes(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{"blob": Bytes()})

	payload := []byte("hello world")
	encoded := base64.StdEncoding.EncodeToString(payload)
	out, err := CoerceArguments("store", obj, mustParse(t, `{"blob": "`+encoded+`"}`))
	require.NoError(t, err)
	assert.Equal(t, payload, out["blob"])

	_, err = CoerceArguments("store", obj, mustParse(t, `{"blob": "%%%not-base64%%%"}`))
	require.Error(t, err)
	fe, _ := mcperrors.As(err)
	assert.Equal(t, "Data", fe.Data().(mcperrors.ArgumentErrorData).Expected)
}

func TestCoerceNestedObject(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{
		"point": ObjectOf(map[string]*Schema{
			"x": Number(),
			"y": Number(),
		}),
	})

	out, err := CoerceArguments("plot", obj, mustParse(t, `{"point": {"x": 1.5, "y": -2}}`))
	require.NoError(t, err)
	point := out["point"].(map[string]interface{})
	assert.Equal(t, 1.5, point["x"])
	assert.Equal(t, float64(-2), point["y"])
}

func TestCoerceNumericRange(t *testing.T) {
	obj := ObjectOf(map[string]*Schema{"pct": Int().WithRange(0, 100)})

	_, err := CoerceArguments("set", obj, mustParse(t, `{"pct": 101}`))
	require.Error(t, err)

	out, err := CoerceArguments("set", obj, mustParse(t, `{"pct": 100}`))
	require.NoError(t, err)
	assert.Equal(t, int64(100), out["pct"])
}

func TestCoerceURIVariable(t *testing.T) {
	n, err := CoerceURIVariable("calc://history/{id}", "id", Int(), "123")
	require.NoError(t, err)
	assert.Equal(t, int64(123), n)

	_, err = CoerceURIVariable("calc://history/{id}", "id", Int(), "abc")
	require.Error(t, err)

	b, err := CoerceURIVariable("flags://{on}", "on", Boolean(), "true")
	require.NoError(t, err)
	assert.Equal(t, true, b)
}

func TestRenderText(t *testing.T) {
	assert.Equal(t, "5", RenderText(int64(5)))
	assert.Equal(t, "2.5", RenderText(2.5))
	assert.Equal(t, "0.6666666666666666", RenderText(2.0/3.0))
	assert.Equal(t, "true", RenderText(true))
	assert.Equal(t, "hello", RenderText("hello"))

	ts := time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-23T10:30:00Z", RenderText(ts))

	id := uuid.MustParse("8f14e45f-ceea-467f-ab3d-2f6e6f3c9b11")
	assert.Equal(t, "8f14e45f-ceea-467f-ab3d-2f6e6f3c9b11", RenderText(id))

	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2}), RenderText([]byte{1, 2}))
}

func TestResultValueCanonicalEncodings(t *testing.T) {
	id := uuid.New()
	v, err := ResultValue(id)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, id.String(), s)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v, err = ResultValue(ts)
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "2026-01-02T03:04:05Z", s)

	v, err = ResultValue([]byte("abc"))
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("abc")), s)
}
