package registry

import "fmt"

// TypeTag is a declared response field type.
type TypeTag string

const (
	TypeString TypeTag = "string"
	TypeNumber TypeTag = "number"
	TypeArray  TypeTag = "array"
)

// Schema is an automation's declared expected-response shape.
type Schema struct {
	RequiredFields []string           `yaml:"required_fields,omitempty"`
	FieldTypes     map[string]TypeTag `yaml:"field_types,omitempty"`
}

// Validate checks a decoded JSON response payload against the schema.
// Required fields are checked first; the first missing field or type
// mismatch short-circuits. A nil schema always passes.
func (s *Schema) Validate(data map[string]any) error {
	if s == nil {
		return nil
	}
	for _, field := range s.RequiredFields {
		if _, ok := data[field]; !ok {
			return fmt.Errorf("missing required field: %s", field)
		}
	}
	for field, want := range s.FieldTypes {
		value, ok := data[field]
		if !ok {
			continue
		}
		if err := checkType(field, want, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(field string, want TypeTag, value any) error {
	switch want {
	case TypeArray:
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("field %q should be array, got %T", field, value)
		}
	case TypeNumber:
		switch value.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("field %q should be number, got %T", field, value)
		}
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q should be string, got %T", field, value)
		}
	}
	return nil
}
