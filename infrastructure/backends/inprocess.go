package backends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/fsassist/domain/capability"
	"github.com/felixgeelhaar/fsassist/domain/pack"
)

// ErrClosed is returned by calls on a closed in-process backend.
var ErrClosed = errors.New("backend closed")

// InProcess serves a pack to the assistant without a child process.
type InProcess struct {
	tag      string
	pack     *pack.Pack
	instance *Instance

	mu     sync.RWMutex
	closed bool
}

// NewInProcess wraps a pack as a backend.
func NewInProcess(tag string, p *pack.Pack) *InProcess {
	return &InProcess{tag: tag, pack: p}
}

// NewInProcessInstance wraps a built instance; Close releases its clients.
func NewInProcessInstance(tag string, inst *Instance) *InProcess {
	return &InProcess{tag: tag, pack: inst.Pack, instance: inst}
}

// Tag returns the backend tag.
func (b *InProcess) Tag() string {
	return b.tag
}

// Capabilities lists the pack's tools in declaration order.
func (b *InProcess) Capabilities(context.Context) ([]capability.Descriptor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return Descriptors(b.pack), nil
}

// Call executes a tool and returns its JSON output. Tool failures wrap
// capability.ErrBackendFault.
func (b *InProcess) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	t, ok := b.pack.GetTool(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", capability.ErrOperationNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	input, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments: %w", err)
	}

	result, err := t.Execute(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", capability.ErrBackendFault, err)
	}
	return json.RawMessage(result.Output), nil
}

// Alive reports whether the backend is open.
func (b *InProcess) Alive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close marks the backend closed once in-flight calls finish.
func (b *InProcess) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.instance != nil {
		return b.instance.Close()
	}
	return nil
}

var _ capability.Backend = (*InProcess)(nil)
