// Package schema implements the closed type algebra used to describe and
// validate tool, resource and prompt parameters, and the coercion engine
// that turns loosely-typed wire values into strongly-typed arguments and
// typed results back into wire-safe values.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/conduitmcp/conduit/pkg/protocol"
)

// Kind enumerates the closed set of schema node types.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindEnum    Kind = "enum"
)

// String formats for structured pass-through types.
const (
	FormatUUID     = "uuid"
	FormatDateTime = "date-time"
	FormatBytes    = "byte"
)

// Schema is one node of the closed type algebra. Default literal values are
// retained on the node whenever the declaration carries one — consumers such
// as the OpenAPI projection need the literal, not just a "has default" flag.
type Schema struct {
	Kind        Kind
	Format      string
	Description string

	// String constraints.
	MinLength *int
	MaxLength *int

	// Numeric constraints.
	Minimum *float64
	Maximum *float64

	// Array element type.
	Items *Schema

	// Object members. Insertion order of Properties is irrelevant; Required
	// is derived, see RequiredProperties.
	Properties map[string]*Schema
	Required   []string

	// Enum case labels in declaration order.
	Values []string

	// Default literal; a property with a default is satisfiable by omission.
	Default *protocol.Value

	// Optional marks a property that tolerates wire null or absence.
	Optional bool
}

// String returns a string schema.
func String() *Schema { return &Schema{Kind: KindString} }

// Int returns an integer schema.
func Int() *Schema { return &Schema{Kind: KindInteger} }

// Number returns a floating-point number schema.
func Number() *Schema { return &Schema{Kind: KindNumber} }

// Boolean returns a boolean schema.
func Boolean() *Schema { return &Schema{Kind: KindBoolean} }

// UUID returns a string schema carrying the uuid format.
func UUID() *Schema { return &Schema{Kind: KindString, Format: FormatUUID} }

// Date returns a string schema carrying the date-time format.
func Date() *Schema { return &Schema{Kind: KindString, Format: FormatDateTime} }

// Bytes returns a string schema carrying the base64 byte format.
func Bytes() *Schema { return &Schema{Kind: KindString, Format: FormatBytes} }

// Enum returns an enum schema over the given case labels, in declaration
// order. Label comparison during coercion is case-sensitive.
func Enum(values ...string) *Schema {
	return &Schema{Kind: KindEnum, Values: values}
}

// ArrayOf returns an array schema with the given element type.
func ArrayOf(items *Schema) *Schema {
	return &Schema{Kind: KindArray, Items: items}
}

// ObjectOf returns an object schema with the given properties. The required
// set is derived: a property is required iff it has no default and is not
// optional.
func ObjectOf(properties map[string]*Schema) *Schema {
	return &Schema{
		Kind:       KindObject,
		Properties: properties,
		Required:   RequiredProperties(properties),
	}
}

// RequiredProperties derives the required set: a property absent from the
// result must be satisfiable by omission, i.e. it is optional or defaulted.
func RequiredProperties(properties map[string]*Schema) []string {
	required := make([]string, 0, len(properties))
	for name, p := range properties {
		if p.Default == nil && !p.Optional {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return required
}

// WithDescription returns the schema with a human description attached.
func (s *Schema) WithDescription(desc string) *Schema {
	s.Description = desc
	return s
}

// WithDefault attaches a default literal. The value must be wire-safe; an
// unconvertible default is a programming error and panics at registration
// time.
func (s *Schema) WithDefault(v interface{}) *Schema {
	val, err := protocol.FromGo(v)
	if err != nil {
		panic(fmt.Sprintf("schema: default value %v is not wire-safe: %v", v, err))
	}
	s.Default = &val
	return s
}

// AsOptional marks the schema as tolerating wire null or absence.
func (s *Schema) AsOptional() *Schema {
	s.Optional = true
	return s
}

// WithRange attaches numeric bounds.
func (s *Schema) WithRange(min, max float64) *Schema {
	s.Minimum = &min
	s.Maximum = &max
	return s
}

// WithLength attaches string length bounds.
func (s *Schema) WithLength(min, max int) *Schema {
	s.MinLength = &min
	s.MaxLength = &max
	return s
}

// IsRequired reports whether a property of this shape must be present.
func (s *Schema) IsRequired() bool {
	return s.Default == nil && !s.Optional
}

// TypeName is the name reported as expectedType in coercion failures.
func (s *Schema) TypeName() string {
	switch s.Kind {
	case KindInteger:
		return "Int"
	case KindNumber:
		return "Number"
	case KindBoolean:
		return "Bool"
	case KindString:
		switch s.Format {
		case FormatUUID:
			return "UUID"
		case FormatDateTime:
			return "Date"
		case FormatBytes:
			return "Data"
		default:
			return "String"
		}
	case KindEnum:
		return "Enum(" + strings.Join(s.Values, "|") + ")"
	case KindArray:
		return "Array<" + s.Items.TypeName() + ">"
	case KindObject:
		return "Object"
	default:
		return string(s.Kind)
	}
}

// MarshalJSON renders the node as a JSON Schema fragment.
func (s *Schema) MarshalJSON() ([]byte, error) {
	doc := map[string]interface{}{}

	switch s.Kind {
	case KindEnum:
		doc["type"] = "string"
		doc["enum"] = s.Values
	case KindArray:
		doc["type"] = "array"
		doc["items"] = s.Items
	case KindObject:
		doc["type"] = "object"
		props := map[string]*Schema{}
		for name, p := range s.Properties {
			props[name] = p
		}
		doc["properties"] = props
		if len(s.Required) > 0 {
			doc["required"] = s.Required
		}
	default:
		doc["type"] = string(s.Kind)
	}

	if s.Format != "" {
		doc["format"] = s.Format
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	if s.MinLength != nil {
		doc["minLength"] = *s.MinLength
	}
	if s.MaxLength != nil {
		doc["maxLength"] = *s.MaxLength
	}
	if s.Minimum != nil {
		doc["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		doc["maximum"] = *s.Maximum
	}
	if s.Default != nil {
		doc["default"] = *s.Default
	}

	// Stable key order for byte-identical schema documents.
	keys := make([]string, 0, len(doc))
	for k := range doc {
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
		vb, err := json.Marshal(doc[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
