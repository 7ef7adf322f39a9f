package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/felixgeelhaar/fsassist/domain/capability"
)

// Backend adapts an MCP client connection to capability.Backend.
type Backend struct {
	tag    string
	client *Client
	hints  map[string]capability.Descriptor

	mu     sync.RWMutex
	closed bool
}

// NewBackend wraps a connected client. Hints fill in schemas and read-only
// flags for servers that advertise none.
func NewBackend(tag string, client *Client, hints []capability.Descriptor) *Backend {
	h := make(map[string]capability.Descriptor, len(hints))
	for _, d := range hints {
		h[d.Name] = d
	}
	return &Backend{tag: tag, client: client, hints: h}
}

// Tag returns the backend tag.
func (b *Backend) Tag() string {
	return b.tag
}

// Capabilities lists the server's tools in declaration order.
func (b *Backend) Capabilities(ctx context.Context) ([]capability.Descriptor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrNotConnected
	}

	defs, err := b.client.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]capability.Descriptor, 0, len(defs))
	for _, def := range defs {
		d := capability.NewDescriptor(def.Name, def.Description, def.InputSchema)
		if hint, ok := b.hints[def.Name]; ok {
			if trivialSchema(def.InputSchema) {
				d.Parameters = hint.Parameters
			}
			if d.Description == "" {
				d.Description = hint.Description
			}
			d.ReadOnly = hint.ReadOnly
		}
		out = append(out, d)
	}
	return out, nil
}

// trivialSchema reports whether a schema declares no properties.
func trivialSchema(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var s struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return true
	}
	return len(s.Properties) == 0
}

// Call invokes a tool. Tool-reported failures wrap capability.ErrBackendFault;
// transport failures do not.
func (b *Backend) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrNotConnected
	}

	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments: %w", err)
	}

	result, err := b.client.CallTool(ctx, ToolCall{Name: name, Arguments: raw})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %s", capability.ErrBackendFault, rpcErr.Message)
		}
		return nil, err
	}

	if result.IsError {
		return nil, fmt.Errorf("%w: %s", capability.ErrBackendFault, result.Text())
	}
	return result, nil
}

// Alive reports whether the connection is usable.
func (b *Backend) Alive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed && b.client.Alive()
}

// Close waits for in-flight calls, then stops the server process.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

// Text joins the text content items of a result.
func (r *ToolResult) Text() string {
	if len(r.Content) == 0 {
		return "tool execution failed"
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
