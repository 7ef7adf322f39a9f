package tool

import (
	"context"
	"encoding/json"
)

// Tool is one file operation a backend pack serves.
type Tool interface {
	// Name is the operation name the model calls, e.g. list_files.
	Name() string

	// Description tells the model what the operation does.
	Description() string

	// InputSchema returns the JSON Schema of the arguments.
	InputSchema() Schema

	// Annotations reports whether the operation touches data.
	Annotations() Annotations

	// Execute runs the operation with JSON-encoded arguments.
	Execute(ctx context.Context, input json.RawMessage) (Result, error)
}

// Handler executes an operation.
type Handler func(ctx context.Context, input json.RawMessage) (Result, error)

// Handle adapts a typed function into a Handler. Input is decoded over a
// copy of defaults and the returned value becomes the JSON result.
func Handle[T any](defaults T, fn func(ctx context.Context, in T) (any, error)) Handler {
	return func(ctx context.Context, input json.RawMessage) (Result, error) {
		in := defaults
		if err := Decode(input, &in); err != nil {
			return Result{}, err
		}
		out, err := fn(ctx, in)
		if err != nil {
			return Result{}, err
		}
		return JSONResult(out)
	}
}

// Operation is the Tool implementation produced by Builder.
type Operation struct {
	name        string
	description string
	inputSchema Schema
	annotations Annotations
	handler     Handler
}

func (o *Operation) Name() string             { return o.name }
func (o *Operation) Description() string      { return o.description }
func (o *Operation) InputSchema() Schema      { return o.inputSchema }
func (o *Operation) Annotations() Annotations { return o.annotations }

// Execute runs the handler.
func (o *Operation) Execute(ctx context.Context, input json.RawMessage) (Result, error) {
	if o.handler == nil {
		return Result{}, ErrNoHandler
	}
	return o.handler(ctx, input)
}

// Builder assembles an Operation. Operations are mutating unless marked
// ReadOnly.
type Builder struct {
	op *Operation
}

// NewBuilder starts an operation called name.
func NewBuilder(name string) *Builder {
	return &Builder{
		op: &Operation{
			name:        name,
			annotations: DefaultAnnotations(),
		},
	}
}

// WithDescription sets the description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.op.description = desc
	return b
}

// WithInputSchema sets the argument schema.
func (b *Builder) WithInputSchema(schema Schema) *Builder {
	b.op.inputSchema = schema
	return b
}

// WithParams is shorthand for WithInputSchema(ObjectSchema(props, required...)).
func (b *Builder) WithParams(props map[string]Property, required ...string) *Builder {
	return b.WithInputSchema(ObjectSchema(props, required...))
}

// ReadOnly marks an operation that only lists, searches or reads.
func (b *Builder) ReadOnly() *Builder {
	b.op.annotations = ReadOnlyAnnotations()
	return b
}

// Destructive marks an operation that removes data.
func (b *Builder) Destructive() *Builder {
	b.op.annotations.ReadOnly = false
	b.op.annotations.Destructive = true
	return b
}

// Idempotent marks a mutating operation that is safe to repeat.
func (b *Builder) Idempotent() *Builder {
	b.op.annotations.Idempotent = true
	return b
}

// WithHandler sets the handler.
func (b *Builder) WithHandler(handler Handler) *Builder {
	b.op.handler = handler
	return b
}

// Build returns the operation.
func (b *Builder) Build() (Tool, error) {
	if b.op.name == "" {
		return nil, ErrEmptyName
	}
	return b.op, nil
}

// MustBuild is Build for operations declared in package code, where an
// empty name is a programming error.
func (b *Builder) MustBuild() Tool {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
