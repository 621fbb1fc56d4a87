package schema

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	mcperrors "github.com/conduitmcp/conduit/pkg/errors"
	"github.com/conduitmcp/conduit/pkg/protocol"
)

// CoerceArguments converts a wire argument map into strongly-typed values
// according to the object schema. Absent properties fall back to their
// declared default; absent required properties fail; optional properties
// accept wire null and absence interchangeably, both meaning "value not
// supplied" (the property is then missing from the result map).
func CoerceArguments(tool string, obj *Schema, args map[string]protocol.Value) (map[string]interface{}, error) {
	if obj == nil || obj.Kind != KindObject {
		return nil, fmt.Errorf("tool %q: argument schema must be an object", tool)
	}

	out := make(map[string]interface{}, len(obj.Properties))
	for name, prop := range obj.Properties {
		v, present := args[name]
		if !present || v.IsNull() {
			switch {
			case prop.Default != nil:
				typed, err := CoerceValue(tool, name, prop, *prop.Default)
				if err != nil {
					return nil, err
				}
				out[name] = typed
			case prop.Optional:
				// Value not supplied.
			default:
				return nil, mcperrors.MissingRequiredArgument(tool, name)
			}
			continue
		}

		typed, err := CoerceValue(tool, name, prop, v)
		if err != nil {
			return nil, err
		}
		out[name] = typed
	}
	return out, nil
}

// CoerceValue converts one wire value into the schema's target type.
func CoerceValue(tool, param string, s *Schema, v protocol.Value) (interface{}, error) {
	switch s.Kind {
	case KindBoolean:
		b, ok := v.AsBool()
		if !ok {
			return nil, typeError(tool, param, s, v)
		}
		return b, nil

	case KindInteger:
		// Integer and floating wire representations are both accepted; a
		// wire string is never silently coerced to a number.
		n, ok := v.AsInt64()
		if !ok {
			return nil, typeError(tool, param, s, v)
		}
		if err := checkRange(tool, param, s, float64(n), v); err != nil {
			return nil, err
		}
		return n, nil

	case KindNumber:
		f, ok := v.AsFloat64()
		if !ok {
			return nil, typeError(tool, param, s, v)
		}
		if err := checkRange(tool, param, s, f, v); err != nil {
			return nil, err
		}
		return f, nil

	case KindString:
		return coerceString(tool, param, s, v)

	case KindEnum:
		label, ok := v.AsString()
		if !ok {
			return nil, typeError(tool, param, s, v)
		}
		for _, candidate := range s.Values {
			if candidate == label {
				return label, nil
			}
		}
		return nil, typeError(tool, param, s, v)

	case KindArray:
		items, ok := v.Items()
		if !ok {
			return nil, typeError(tool, param, s, v)
		}
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			// Fails on the first bad element, reporting the element's own
			// type name as expectedType.
			typed, err := CoerceValue(tool, param, s.Items, item)
			if err != nil {
				return nil, err
			}
			out = append(out, typed)
		}
		return out, nil

	case KindObject:
		fields, ok := v.Fields()
		if !ok {
			return nil, typeError(tool, param, s, v)
		}
		return CoerceArguments(tool, s, fields)

	default:
		return nil, fmt.Errorf("tool %q parameter %q: unknown schema kind %q", tool, param, s.Kind)
	}
}

// coerceString handles plain strings and the structured pass-through
// formats. Pass-through types try a native in-process value first, then
// fall back to decoding the canonical string form.
func coerceString(tool, param string, s *Schema, v protocol.Value) (interface{}, error) {
	switch s.Format {
	case FormatUUID:
		if id, ok := v.Native().(uuid.UUID); ok {
			return id, nil
		}
		raw, ok := v.AsString()
		if !ok {
			return nil, typeError(tool, param, s, v)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, typeError(tool, param, s, v)
		}
		return id, nil

	case FormatDateTime:
		if ts, ok := v.Native().(time.Time); ok {
			return ts, nil
		}
		if raw, ok := v.AsString(); ok {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, typeError(tool, param, s, v)
			}
			return ts, nil
		}
		// Numeric-epoch wire form, seconds since 1970.
		if secs, ok := v.AsFloat64(); ok {
			sec, frac := int64(secs), secs-float64(int64(secs))
			return time.Unix(sec, int64(frac*float64(time.Second))).UTC(), nil
		}
		return nil, typeError(tool, param, s, v)

	case FormatBytes:
		if bs, ok := v.Native().([]byte); ok {
			return bs, nil
		}
		raw, ok := v.AsString()
		if !ok {
			return nil, typeError(tool, param, s, v)
		}
		bs, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, typeError(tool, param, s, v)
		}
		return bs, nil

	default:
		raw, ok := v.AsString()
		if !ok {
			return nil, typeError(tool, param, s, v)
		}
		if s.MinLength != nil && len(raw) < *s.MinLength {
			return nil, typeError(tool, param, s, v)
		}
		if s.MaxLength != nil && len(raw) > *s.MaxLength {
			return nil, typeError(tool, param, s, v)
		}
		return raw, nil
	}
}

// CoerceURIVariable converts one percent-decoded URI template variable into
// the schema's target type. URI variables arrive as strings, so unlike wire
// coercion, numeric and boolean targets decode from the string form here.
func CoerceURIVariable(resource, name string, s *Schema, raw string) (interface{}, error) {
	switch s.Kind {
	case KindInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, mcperrors.InvalidArgumentType(resource, name, s.TypeName(), raw)
		}
		return n, nil
	case KindNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, mcperrors.InvalidArgumentType(resource, name, s.TypeName(), raw)
		}
		return f, nil
	case KindBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, mcperrors.InvalidArgumentType(resource, name, s.TypeName(), raw)
		}
		return b, nil
	default:
		return CoerceValue(resource, name, s, protocol.String(raw))
	}
}

// ResultValue is the mirror of CoerceValue: it converts a typed return
// value into a wire-safe dynamic value. Numbers pass as-is, enums pass as
// their label, UUID/Date/Data convert to their canonical string encodings,
// structs become field→value maps, nil optionals stay absent.
func ResultValue(v interface{}) (protocol.Value, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return protocol.String(t.String()), nil
	case time.Time:
		return protocol.String(t.Format(time.RFC3339)), nil
	case []byte:
		return protocol.String(base64.StdEncoding.EncodeToString(t)), nil
	default:
		return protocol.FromGo(v)
	}
}

// RenderText renders a typed tool result as the text-content string.
// Floating-point values keep Go's shortest round-trip formatting.
func RenderText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case json.Number:
		return t.String()
	case uuid.UUID:
		return t.String()
	case time.Time:
		return t.Format(time.RFC3339)
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case error:
		return t.Error()
	default:
		bs, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bs)
	}
}

func checkRange(tool, param string, s *Schema, f float64, v protocol.Value) error {
	if s.Minimum != nil && f < *s.Minimum {
		return typeError(tool, param, s, v)
	}
	if s.Maximum != nil && f > *s.Maximum {
		return typeError(tool, param, s, v)
	}
	return nil
}

func typeError(tool, param string, s *Schema, v protocol.Value) error {
	return mcperrors.InvalidArgumentType(tool, param, s.TypeName(), describeValue(v))
}

// describeValue renders the offending value for error messages without
// dumping arbitrarily large payloads.
func describeValue(v protocol.Value) interface{} {
	switch v.Kind() {
	case protocol.KindString:
		s, _ := v.AsString()
		return s
	case protocol.KindNumber:
		n, _ := v.AsNumber()
		return n.String()
	case protocol.KindBool:
		b, _ := v.AsBool()
		return b
	default:
		return v.Kind().String()
	}
}
