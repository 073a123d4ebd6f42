package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrSchemaMismatch is returned when a Model's AsDict output disagrees
// with its Schema. The output collaborator treats this as fatal for the
// record; values are never silently coerced.
var ErrSchemaMismatch = errors.New("model values do not match schema")

// DType identifies the numeric type of a leaf schema field.
type DType string

// Supported leaf types for output records.
const (
	Float64 DType = "float64"
	Int64   DType = "int64"
)

// Field is one entry of a Schema: either a leaf with a numeric Type, or
// a nested group with a non-nil Nested schema. Exactly one of the two
// is set.
type Field struct {
	Type   DType
	Nested Schema
}

// Leaf returns a leaf field of the given type.
func Leaf(t DType) Field { return Field{Type: t} }

// Group returns a nested group field.
func Group(s Schema) Field { return Field{Nested: s} }

// Schema is a nested mapping from field name to Field, describing the
// flattened output record an algorithm produces per object.
type Schema map[string]Field

// Values is a nested mapping mirroring a Schema: leaves are float64 or
// int64, groups are nested Values.
type Values map[string]any

// Keys returns the sorted top-level field names.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that vals matches the schema exactly: same key set at
// every level, and leaf value types matching the declared DType. Any
// disagreement is reported wrapped in ErrSchemaMismatch.
func (s Schema) Validate(vals Values) error {
	return s.validate(vals, "")
}

func (s Schema) validate(vals Values, prefix string) error {
	if len(vals) != len(s) {
		return fmt.Errorf("%w: field count %d at %q, schema has %d", ErrSchemaMismatch, len(vals), prefix, len(s))
	}
	for name, field := range s {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		v, ok := vals[name]
		if !ok {
			return fmt.Errorf("%w: missing field %q", ErrSchemaMismatch, path)
		}
		if field.Nested != nil {
			nested, ok := v.(Values)
			if !ok {
				return fmt.Errorf("%w: field %q should be a group, got %T", ErrSchemaMismatch, path, v)
			}
			if err := field.Nested.validate(nested, path); err != nil {
				return err
			}
			continue
		}
		switch field.Type {
		case Float64:
			if _, ok := v.(float64); !ok {
				return fmt.Errorf("%w: field %q should be float64, got %T", ErrSchemaMismatch, path, v)
			}
		case Int64:
			if _, ok := v.(int64); !ok {
				return fmt.Errorf("%w: field %q should be int64, got %T", ErrSchemaMismatch, path, v)
			}
		default:
			return fmt.Errorf("%w: field %q has unknown dtype %q", ErrSchemaMismatch, path, field.Type)
		}
	}
	return nil
}

// Flatten returns the values as a flat map keyed by dotted field paths,
// in the shape the output store persists. Validate should be called
// first; Flatten does not re-check types.
func Flatten(vals Values) map[string]any {
	out := make(map[string]any, len(vals))
	flattenInto(vals, "", out)
	return out
}

func flattenInto(vals Values, prefix string, out map[string]any) {
	for name, v := range vals {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if nested, ok := v.(Values); ok {
			flattenInto(nested, path, out)
			continue
		}
		out[path] = v
	}
}
