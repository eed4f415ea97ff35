package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Schema type names as the Gemini API spells them.
const (
	TypeObject  = "OBJECT"
	TypeArray   = "ARRAY"
	TypeString  = "STRING"
	TypeNumber  = "NUMBER"
	TypeInteger = "INTEGER"
	TypeBoolean = "BOOLEAN"
)

// Schema is the structural type descriptor sent as responseSchema.
type Schema struct {
	Type             string             `json:"type"`
	Description      string             `json:"description,omitempty"`
	Format           string             `json:"format,omitempty"`
	Enum             []string           `json:"enum,omitempty"`
	Nullable         bool               `json:"nullable,omitempty"`
	Properties       map[string]*Schema `json:"properties,omitempty"`
	Required         []string           `json:"required,omitempty"`
	Items            *Schema            `json:"items,omitempty"`
	PropertyOrdering []string           `json:"propertyOrdering,omitempty"`
}

func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

func ArrayOf(items *Schema) *Schema {
	return &Schema{Type: TypeArray, Items: items}
}

func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

func Integer(description string) *Schema {
	return &Schema{Type: TypeInteger, Description: description}
}

func Number(description string) *Schema {
	return &Schema{Type: TypeNumber, Description: description}
}

func Boolean(description string) *Schema {
	return &Schema{Type: TypeBoolean, Description: description}
}

func Enum(description string, values ...string) *Schema {
	return &Schema{Type: TypeString, Description: description, Enum: values}
}

// Canonical returns a deep copy with upper-case type names.
func (s *Schema) Canonical() *Schema {
	if s == nil {
		return nil
	}
	out := *s
	out.Type = strings.ToUpper(s.Type)
	out.Items = s.Items.Canonical()
	if s.Properties != nil {
		out.Properties = make(map[string]*Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = v.Canonical()
		}
	}
	return &out
}

// SchemaError reports where a JSON document departs from its schema.
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	return e.Path + ": " + e.Reason
}

// ValidateJSON parses text as JSON and checks it against schema.
func ValidateJSON(schema *Schema, text string) error {
	if strings.TrimSpace(text) == "" {
		return &SchemaError{Path: "$", Reason: "empty response text"}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return &SchemaError{Path: "$", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if dec.More() {
		return &SchemaError{Path: "$", Reason: "trailing data after JSON value"}
	}
	return check(schema, v, "$")
}

func check(s *Schema, v any, path string) error {
	if s == nil {
		return nil
	}
	if v == nil {
		if s.Nullable {
			return nil
		}
		return &SchemaError{Path: path, Reason: "null is not allowed"}
	}

	switch strings.ToUpper(s.Type) {
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, s.Type, v)
		}
		for _, name := range s.Required {
			if _, ok := obj[name]; !ok {
				return &SchemaError{Path: path, Reason: fmt.Sprintf("missing required property %q", name)}
			}
		}
		for name, prop := range s.Properties {
			val, ok := obj[name]
			if !ok {
				continue
			}
			if err := check(prop, val, path+"."+name); err != nil {
				return err
			}
		}
	case TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return mismatch(path, s.Type, v)
		}
		for i, item := range arr {
			if err := check(s.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return mismatch(path, s.Type, v)
		}
		if len(s.Enum) > 0 && !slices.Contains(s.Enum, str) {
			return &SchemaError{Path: path, Reason: fmt.Sprintf("%q is not one of %v", str, s.Enum)}
		}
	case TypeNumber:
		if _, ok := v.(json.Number); !ok {
			return mismatch(path, s.Type, v)
		}
	case TypeInteger:
		n, ok := v.(json.Number)
		if !ok {
			return mismatch(path, s.Type, v)
		}
		if _, err := n.Int64(); err != nil {
			f, ferr := n.Float64()
			if ferr != nil || f != math.Trunc(f) {
				return &SchemaError{Path: path, Reason: fmt.Sprintf("%s is not an integer", n)}
			}
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return mismatch(path, s.Type, v)
		}
	}
	return nil
}

func mismatch(path, want string, got any) error {
	return &SchemaError{Path: path, Reason: fmt.Sprintf("expected %s, got %s", strings.ToUpper(want), jsonKind(got))}
}

func jsonKind(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return "null"
	}
}
