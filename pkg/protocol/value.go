package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind enumerates the closed set of wire value shapes.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the wire-facing name of the kind, used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is the dynamic container for untyped argument and result payloads:
// a tagged union over null, bool, number, string, array and object. Numbers
// are held as json.Number so integer ids and 53-bit-safe integers survive a
// round trip without float re-encoding.
//
// When a Value originates from an in-process caller rather than the wire,
// the original Go value is retained alongside the wire shape; the coercion
// engine tries that native value first before falling back to string
// decoding.
type Value struct {
	kind   Kind
	b      bool
	n      json.Number
	s      string
	arr    []Value
	obj    map[string]Value
	native interface{}
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer number value.
func Int(n int64) Value {
	return Value{kind: KindNumber, n: json.Number(strconv.FormatInt(n, 10))}
}

// Float returns a floating number value.
func Float(f float64) Value {
	return Value{kind: KindNumber, n: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array value.
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Object returns an object value.
func Object(fields map[string]Value) Value { return Value{kind: KindObject, obj: fields} }

// FromGo converts an arbitrary in-process Go value into a Value. Primitives,
// slices and string-keyed maps convert structurally; everything else (UUIDs,
// times, byte slices, structs) is marshaled to its canonical JSON form while
// the original value is retained for native-first coercion.
func FromGo(v interface{}) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		return Value{kind: KindNumber, n: t}, nil
	case string:
		return String(t), nil
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			iv, err := FromGo(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, iv)
		}
		return Array(items...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fv, err := FromGo(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = fv
		}
		return Object(fields), nil
	default:
		bs, err := json.Marshal(v)
		if err != nil {
			return Value{}, fmt.Errorf("value of type %T is not wire-safe: %w", v, err)
		}
		parsed, err := ParseValue(bs)
		if err != nil {
			return Value{}, err
		}
		parsed.native = v
		return parsed, nil
	}
}

// ParseValue decodes raw JSON into a Value.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("invalid value: %w", err)
	}
	return fromDecoded(raw)
}

func fromDecoded(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Value{kind: KindNumber, n: t}, nil
	case string:
		return String(t), nil
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			iv, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, iv)
		}
		return Array(items...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fv, err := fromDecoded(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = fv
		}
		return Object(fields), nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON shape %T", raw)
	}
}

// Kind returns the value's shape tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Native returns the retained in-process Go value, or nil when the value
// came off the wire.
func (v Value) Native() interface{} { return v.native }

// AsBool returns the boolean value.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt64 returns the integer value. Floating representations of integral
// numbers (e.g. 3.0) are accepted; 3.5 is not.
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if n, err := v.n.Int64(); err == nil {
		return n, true
	}
	f, err := v.n.Float64()
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// AsFloat64 returns the numeric value as a float.
func (v Value) AsFloat64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// AsNumber returns the raw json.Number.
func (v Value) AsNumber() (json.Number, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.n, true
}

// AsString returns the string value.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Items returns the array elements.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// Fields returns the object members.
func (v Value) Fields() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Field returns a single object member.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// ToGo converts the value back into plain Go containers (map[string]any,
// []any, json.Number, string, bool, nil).
func (v Value) ToGo() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		items := make([]interface{}, 0, len(v.arr))
		for _, item := range v.arr {
			items = append(items, item.ToGo())
		}
		return items
	case KindObject:
		fields := make(map[string]interface{}, len(v.obj))
		for k, f := range v.obj {
			fields[k] = f.ToGo()
		}
		return fields
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return []byte(v.n), nil
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		// Deterministic key order keeps encoded payloads stable.
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			fb, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(fb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
