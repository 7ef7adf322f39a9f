// Package capability defines the operations a storage backend advertises
// and the handle the assistant uses to reach it.
package capability

import (
	"context"
	"encoding/json"
)

// emptyObjectSchema is substituted when a backend advertises no schema.
var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// Descriptor describes one advertised operation.
type Descriptor struct {
	// Name is the unique operation name visible to the model.
	Name string `json:"name"`

	// Description tells the model what the operation does.
	Description string `json:"description,omitempty"`

	// Parameters is a JSON Schema object describing the arguments.
	Parameters json.RawMessage `json:"parameters"`

	// ReadOnly marks operations that can be retried safely.
	ReadOnly bool `json:"-"`
}

// NewDescriptor creates a descriptor, defaulting an empty schema to an
// empty object schema.
func NewDescriptor(name, description string, parameters json.RawMessage) Descriptor {
	if len(parameters) == 0 || string(parameters) == "null" {
		parameters = emptyObjectSchema
	}
	return Descriptor{
		Name:        name,
		Description: description,
		Parameters:  parameters,
	}
}

// Properties returns the property names declared by the parameter schema.
func (d Descriptor) Properties() map[string]struct{} {
	var schema struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(d.Parameters, &schema); err != nil {
		return nil
	}
	props := make(map[string]struct{}, len(schema.Properties))
	for name := range schema.Properties {
		props[name] = struct{}{}
	}
	return props
}

// Declares reports whether the schema declares the named property.
func (d Descriptor) Declares(property string) bool {
	_, ok := d.Properties()[property]
	return ok
}

// Backend is a live connection to one backend process.
type Backend interface {
	// Tag is the short provider identifier, e.g. "local" or "gdrive".
	Tag() string

	// Capabilities lists the operations the backend advertises, in
	// declaration order.
	Capabilities(ctx context.Context) ([]Descriptor, error)

	// Call invokes an operation. A non-nil error means the backend faulted.
	Call(ctx context.Context, name string, args map[string]any) (any, error)

	// Alive reports whether the connection is still usable.
	Alive() bool

	// Close tears down the connection and the process behind it.
	Close() error
}
