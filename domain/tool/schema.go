package tool

import (
	"encoding/json"
	"sort"
)

// Schema wraps a JSON Schema describing tool input.
type Schema struct {
	raw json.RawMessage
}

// NewSchema creates a schema from raw JSON.
func NewSchema(raw json.RawMessage) Schema {
	return Schema{raw: raw}
}

// Property describes one schema property.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// String is shorthand for a string property.
func String(description string) Property {
	return Property{Type: "string", Description: description}
}

// WithDefault returns a copy of the property carrying a default value.
func (p Property) WithDefault(v any) Property {
	p.Default = v
	return p
}

// ObjectSchema returns a schema for an object with the given properties.
func ObjectSchema(properties map[string]Property, required ...string) Schema {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, _ := json.Marshal(schema)
	return Schema{raw: raw}
}

// Raw returns the underlying JSON schema.
func (s Schema) Raw() json.RawMessage {
	return s.raw
}

// IsEmpty returns true if the schema is empty or nil.
func (s Schema) IsEmpty() bool {
	return len(s.raw) == 0 || string(s.raw) == "{}" || string(s.raw) == "null"
}

// MarshalJSON implements json.Marshaler.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s.IsEmpty() {
		return []byte(`{"type":"object"}`), nil
	}
	return s.raw, nil
}

// PropertyNames returns the declared property names in sorted order.
func (s Schema) PropertyNames() []string {
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if s.IsEmpty() || json.Unmarshal(s.raw, &doc) != nil {
		return nil
	}
	names := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
