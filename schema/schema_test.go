package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuilders(t *testing.T) {
	tests := []struct {
		name     string
		schema   JSON
		wantType string
	}{
		{"string", String(), "string"},
		{"int", Int(), "integer"},
		{"number", Number(), "number"},
		{"bool", Bool(), "boolean"},
		{"array", Array(String()), "array"},
		{"object", Object(nil), "object"},
		{"any", Any(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.schema.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", tt.schema.Type, tt.wantType)
			}
		})
	}
}

func TestBuilders_Immutable(t *testing.T) {
	base := Number()
	bounded := base.WithMinimum(0).WithMaximum(100)

	if base.Minimum != nil || base.Maximum != nil {
		t.Error("WithMinimum/WithMaximum must not modify the receiver")
	}
	if bounded.Minimum == nil || *bounded.Minimum != 0 {
		t.Errorf("Minimum = %v, want 0", bounded.Minimum)
	}
	if bounded.Maximum == nil || *bounded.Maximum != 100 {
		t.Errorf("Maximum = %v, want 100", bounded.Maximum)
	}

	described := base.WithDescription("a reading")
	if base.Description != "" {
		t.Error("WithDescription must not modify the receiver")
	}
	if described.Description != "a reading" {
		t.Errorf("Description = %q", described.Description)
	}
}

func TestValidate_Primitives(t *testing.T) {
	tests := []struct {
		name    string
		schema  JSON
		value   any
		wantErr bool
	}{
		{"string ok", String(), "hello", false},
		{"string wrong type", String(), 42, true},
		{"string nil", String(), nil, true},
		{"any nil", Any(), nil, false},
		{"any value", Any(), map[string]any{"x": 1}, false},

		{"int ok", Int(), 42, false},
		{"int as whole float", Int(), 42.0, false},
		{"int fractional float", Int(), 42.5, true},
		{"int wrong type", Int(), "42", true},

		{"number ok", Number(), 3.14, false},
		{"number from int", Number(), 7, false},
		{"number wrong type", Number(), "3.14", true},
		{"number below min", Number().WithMinimum(0), -1.0, true},
		{"number at min", Number().WithMinimum(0), 0.0, false},
		{"number above max", Number().WithMaximum(10), 10.5, true},

		{"bool ok", Bool(), true, false},
		{"bool wrong type", Bool(), 1, true},

		{"enum ok", Enum("raw", "intermediate", "finished"), "raw", false},
		{"enum miss", Enum("raw", "intermediate", "finished"), "packaging", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Object(t *testing.T) {
	params := Object(map[string]JSON{
		"number":   StringWithDesc("Batch number"),
		"quantity": Number().WithMinimum(0),
		"tags":     Array(String()),
	}, "number")

	if err := params.Validate(map[string]any{"number": "B100", "quantity": 50.0}); err != nil {
		t.Errorf("valid object rejected: %v", err)
	}

	err := params.Validate(map[string]any{"quantity": 50.0})
	if err == nil || !strings.Contains(err.Error(), "number") {
		t.Errorf("missing required field not reported: %v", err)
	}

	err = params.Validate(map[string]any{"number": "B100", "quantity": -1.0})
	if err == nil || !strings.Contains(err.Error(), "quantity") {
		t.Errorf("bad property not reported by name: %v", err)
	}

	err = params.Validate(map[string]any{"number": "B100", "tags": []any{"a", 3}})
	if err == nil || !strings.Contains(err.Error(), "item 1") {
		t.Errorf("bad array item not reported by index: %v", err)
	}

	// Unknown properties pass through.
	if err := params.Validate(map[string]any{"number": "B100", "extra": true}); err != nil {
		t.Errorf("unknown property rejected: %v", err)
	}

	if err := params.Validate("not an object"); err == nil {
		t.Error("non-object accepted")
	}
}

func TestJSON_Marshal(t *testing.T) {
	s := Object(map[string]JSON{
		"severity": EnumWithDesc("Deviation severity", "minor", "major", "critical"),
	}, "severity")

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["type"] != "object" {
		t.Errorf("type = %v, want object", decoded["type"])
	}
	if _, ok := decoded["properties"]; !ok {
		t.Error("properties missing from marshaled schema")
	}
	// Zero-valued fields stay out of the wire form.
	if _, ok := decoded["minimum"]; ok {
		t.Error("unset minimum must be omitted")
	}
}
