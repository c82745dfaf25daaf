package schema

import (
	"fmt"
	"reflect"
)

// JSON represents a JSON Schema definition.
// It provides a structured way to define and validate JSON data structures.
type JSON struct {
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Properties  map[string]JSON `json:"properties,omitempty"`
	Required    []string        `json:"required,omitempty"`
	Items       *JSON           `json:"items,omitempty"`
	Enum        []any           `json:"enum,omitempty"`
	Default     any             `json:"default,omitempty"`
	Minimum     *float64        `json:"minimum,omitempty"`
	Maximum     *float64        `json:"maximum,omitempty"`
}

// Any creates a JSON schema that accepts any type.
// This is useful for dynamic or unstructured data.
func Any() JSON {
	return JSON{}
}

// String creates a JSON schema for a string type.
func String() JSON {
	return JSON{Type: "string"}
}

// StringWithDesc creates a JSON schema for a string type with a description.
func StringWithDesc(desc string) JSON {
	return JSON{
		Type:        "string",
		Description: desc,
	}
}

// Int creates a JSON schema for an integer type.
func Int() JSON {
	return JSON{Type: "integer"}
}

// Number creates a JSON schema for a number type.
func Number() JSON {
	return JSON{Type: "number"}
}

// NumberWithDesc creates a JSON schema for a number type with a description.
func NumberWithDesc(desc string) JSON {
	return JSON{
		Type:        "number",
		Description: desc,
	}
}

// Bool creates a JSON schema for a boolean type.
func Bool() JSON {
	return JSON{Type: "boolean"}
}

// Array creates a JSON schema for an array type with the specified item schema.
func Array(items JSON) JSON {
	return JSON{
		Type:  "array",
		Items: &items,
	}
}

// Object creates a JSON schema for an object type with the specified properties and required fields.
func Object(properties map[string]JSON, required ...string) JSON {
	return JSON{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// Enum creates a JSON schema with enumerated values.
func Enum(values ...any) JSON {
	return JSON{Enum: values}
}

// EnumWithDesc creates a JSON schema with enumerated values and a description.
func EnumWithDesc(desc string, values ...any) JSON {
	return JSON{Description: desc, Enum: values}
}

// WithDescription returns a copy of the schema with the description set.
// This method is immutable - it does not modify the receiver.
func (s JSON) WithDescription(desc string) JSON {
	s.Description = desc
	return s
}

// WithDefault returns a copy of the schema with the default value set.
func (s JSON) WithDefault(value any) JSON {
	s.Default = value
	return s
}

// WithMinimum returns a copy of the schema with the minimum constraint set.
func (s JSON) WithMinimum(min float64) JSON {
	s.Minimum = &min
	return s
}

// WithMaximum returns a copy of the schema with the maximum constraint set.
func (s JSON) WithMaximum(max float64) JSON {
	s.Maximum = &max
	return s
}

// Validate validates the given value against this JSON schema.
// It returns an error if the value does not conform to the schema.
func (s JSON) Validate(value any) error {
	// Handle nil values
	if value == nil {
		if s.Type != "" {
			return fmt.Errorf("expected type %s, got nil", s.Type)
		}
		return nil
	}

	// Validate enum
	if len(s.Enum) > 0 {
		return s.validateEnum(value)
	}

	switch s.Type {
	case "":
		return nil
	case "string":
		return s.validateString(value)
	case "integer":
		return s.validateInteger(value)
	case "number":
		return s.validateNumber(value)
	case "boolean":
		return s.validateBoolean(value)
	case "array":
		return s.validateArray(value)
	case "object":
		return s.validateObject(value)
	default:
		return fmt.Errorf("unknown schema type %q", s.Type)
	}
}

// validateString validates string type.
func (s JSON) validateString(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

// validateInteger validates integer type and numeric constraints. Floats
// with no fractional part are accepted because JSON decoding widens all
// numbers to float64.
func (s JSON) validateInteger(value any) error {
	var num float64

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		num = float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		num = float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		num = v.Float()
		if num != float64(int64(num)) {
			return fmt.Errorf("expected integer, got float with decimal: %v", value)
		}
	default:
		return fmt.Errorf("expected integer, got %T", value)
	}

	return s.validateNumericConstraints(num)
}

// validateNumber validates number type and numeric constraints.
func (s JSON) validateNumber(value any) error {
	var num float64

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		num = float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		num = float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		num = v.Float()
	default:
		return fmt.Errorf("expected number, got %T", value)
	}

	return s.validateNumericConstraints(num)
}

// validateNumericConstraints validates minimum and maximum constraints.
func (s JSON) validateNumericConstraints(num float64) error {
	if s.Minimum != nil && num < *s.Minimum {
		return fmt.Errorf("value %v is less than minimum %v", num, *s.Minimum)
	}
	if s.Maximum != nil && num > *s.Maximum {
		return fmt.Errorf("value %v is greater than maximum %v", num, *s.Maximum)
	}
	return nil
}

// validateBoolean validates boolean type.
func (s JSON) validateBoolean(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected boolean, got %T", value)
	}
	return nil
}

// validateArray validates array type and item schemas.
func (s JSON) validateArray(value any) error {
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Errorf("expected array, got %T", value)
	}

	if s.Items != nil {
		for i := 0; i < v.Len(); i++ {
			if err := s.Items.Validate(v.Index(i).Interface()); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	}

	return nil
}

// validateObject validates required fields and per-property schemas.
// Properties not named in the schema pass through unvalidated.
func (s JSON) validateObject(value any) error {
	objMap, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("expected object, got %T", value)
	}

	for _, req := range s.Required {
		if _, exists := objMap[req]; !exists {
			return fmt.Errorf("required field %s is missing", req)
		}
	}

	for key, val := range objMap {
		if propSchema, exists := s.Properties[key]; exists {
			if err := propSchema.Validate(val); err != nil {
				return fmt.Errorf("property %s: %w", key, err)
			}
		}
	}

	return nil
}

// validateEnum validates that the value is one of the allowed enum values.
func (s JSON) validateEnum(value any) error {
	for _, enumVal := range s.Enum {
		if reflect.DeepEqual(value, enumVal) {
			return nil
		}
	}
	return fmt.Errorf("value %v is not one of the allowed values: %v", value, s.Enum)
}
