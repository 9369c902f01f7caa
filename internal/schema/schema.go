// Package schema declares the JSON shapes exchanged with a model and
// validates raw model output against them before it is decoded.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Type is a JSON schema type name.
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeBoolean Type = "boolean"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
)

// Schema is the subset of JSON schema needed to describe model output.
// Providers translate it into their own structured-output formats.
type Schema struct {
	Type        Type
	Description string
	Properties  map[string]*Schema
	// Required lists properties that must be present and non-null.
	Required []string
	// PropertyOrdering fixes the order properties are presented to the model.
	PropertyOrdering []string
	Items            *Schema
}

// OutputError describes why a raw response does not match a schema.
type OutputError struct {
	Path   string
	Reason string
}

func (e *OutputError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Validate checks raw JSON against the schema. It never coerces values:
// "true" is not a boolean and 1 is not a string.
func (s *Schema) Validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return &OutputError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &OutputError{Reason: "malformed JSON: trailing data after value"}
	}

	return s.check("", v)
}

func (s *Schema) check(path string, v any) error {
	switch s.Type {
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return typeError(path, s.Type, v)
		}
		for _, name := range s.Required {
			if val, ok := obj[name]; !ok || val == nil {
				return &OutputError{Path: join(path, name), Reason: "required property missing"}
			}
		}
		for _, name := range s.propertyNames() {
			val, ok := obj[name]
			if !ok || val == nil {
				continue
			}
			if err := s.Properties[name].check(join(path, name), val); err != nil {
				return err
			}
		}
	case TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return typeError(path, s.Type, v)
		}
		if s.Items == nil {
			return nil
		}
		for i, item := range arr {
			if err := s.Items.check(path+"["+strconv.Itoa(i)+"]", item); err != nil {
				return err
			}
		}
	case TypeString:
		if _, ok := v.(string); !ok {
			return typeError(path, s.Type, v)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return typeError(path, s.Type, v)
		}
	case TypeInteger:
		n, ok := v.(json.Number)
		if !ok {
			return typeError(path, s.Type, v)
		}
		if _, err := n.Int64(); err != nil {
			return typeError(path, s.Type, v)
		}
	case TypeNumber:
		if _, ok := v.(json.Number); !ok {
			return typeError(path, s.Type, v)
		}
	default:
		return fmt.Errorf("schema: unsupported type %q", s.Type)
	}
	return nil
}

// propertyNames returns property names in a stable order: the declared
// ordering first, then anything else in the order it was listed in
// Required.
func (s *Schema) propertyNames() []string {
	if len(s.PropertyOrdering) == len(s.Properties) {
		return s.PropertyOrdering
	}
	seen := make(map[string]bool, len(s.Properties))
	names := make([]string, 0, len(s.Properties))
	for _, list := range [][]string{s.PropertyOrdering, s.Required} {
		for _, name := range list {
			if _, ok := s.Properties[name]; ok && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	for name := range s.Properties {
		if !seen[name] {
			names = append(names, name)
		}
	}
	return names
}

// Ordering returns the property presentation order for providers.
func (s *Schema) Ordering() []string {
	return s.propertyNames()
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func typeError(path string, want Type, got any) error {
	return &OutputError{Path: path, Reason: fmt.Sprintf("expected %s, got %s", want, jsonType(got))}
}

func jsonType(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
