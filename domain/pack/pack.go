// Package pack provides types for the tool collections a backend process
// serves.
package pack

import (
	"fmt"

	"github.com/felixgeelhaar/fsassist/domain/tool"
)

// Pack is the ordered set of tools one backend serves.
type Pack struct {
	// Name is the unique identifier for the pack.
	Name string

	// Description explains what the pack provides.
	Description string

	// Version is the semantic version of the pack.
	Version string

	// Instructions are handed to MCP clients on initialize.
	Instructions string

	// Tools is the collection of tools in declaration order.
	Tools []tool.Tool
}

// ToolNames returns the names of all tools in the pack.
func (p *Pack) ToolNames() []string {
	names := make([]string, len(p.Tools))
	for i, t := range p.Tools {
		names[i] = t.Name()
	}
	return names
}

// GetTool returns a tool by name from the pack.
func (p *Pack) GetTool(name string) (tool.Tool, bool) {
	for _, t := range p.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Validate checks the pack has a name and no duplicate tool names.
func (p *Pack) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPack)
	}
	seen := make(map[string]struct{}, len(p.Tools))
	for _, t := range p.Tools {
		if _, dup := seen[t.Name()]; dup {
			return fmt.Errorf("%w: duplicate tool %s", ErrInvalidPack, t.Name())
		}
		seen[t.Name()] = struct{}{}
	}
	return nil
}

// Builder provides a fluent API for constructing packs.
type Builder struct {
	pack *Pack
}

// NewBuilder creates a new pack builder.
func NewBuilder(name string) *Builder {
	return &Builder{
		pack: &Pack{
			Name:  name,
			Tools: make([]tool.Tool, 0),
		},
	}
}

// WithDescription sets the pack description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.pack.Description = desc
	return b
}

// WithVersion sets the pack version.
func (b *Builder) WithVersion(version string) *Builder {
	b.pack.Version = version
	return b
}

// WithInstructions sets the instructions sent on initialize.
func (b *Builder) WithInstructions(text string) *Builder {
	b.pack.Instructions = text
	return b
}

// AddTools adds tools to the pack.
func (b *Builder) AddTools(tools ...tool.Tool) *Builder {
	b.pack.Tools = append(b.pack.Tools, tools...)
	return b
}

// Build returns the constructed pack.
func (b *Builder) Build() (*Pack, error) {
	if err := b.pack.Validate(); err != nil {
		return nil, err
	}
	return b.pack, nil
}
