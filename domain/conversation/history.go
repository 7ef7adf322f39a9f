package conversation

import (
	"errors"
	"fmt"
	"sync"
)

// Errors returned by History.
var (
	// ErrUnknownRequest indicates a tool turn answers no pending request.
	ErrUnknownRequest = errors.New("tool turn answers no pending request")

	// ErrPendingRequests indicates a non-tool turn was appended while
	// requests still lack results.
	ErrPendingRequests = errors.New("operation requests still pending")

	// ErrSystemTurn indicates an attempt to append a second system turn.
	ErrSystemTurn = errors.New("system turn is set once at construction")
)

// History is the append-only conversation record. Every operation request
// on an assistant turn must be answered by exactly one tool turn before any
// other turn is appended.
type History struct {
	mu      sync.RWMutex
	turns   []Turn
	pending []string
}

// NewHistory creates a history seeded with the system instruction.
func NewHistory(system string) *History {
	return &History{turns: []Turn{SystemTurn(system)}}
}

// Append adds a turn, enforcing request/result pairing.
func (h *History) Append(t Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch t.Role {
	case RoleSystem:
		return ErrSystemTurn
	case RoleTool:
		idx := -1
		for i, id := range h.pending {
			if id == t.RequestID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownRequest, t.RequestID)
		}
		h.pending = append(h.pending[:idx], h.pending[idx+1:]...)
	default:
		if len(h.pending) > 0 {
			return fmt.Errorf("%w: %v", ErrPendingRequests, h.pending)
		}
		if t.Role == RoleAssistant {
			for _, req := range t.Requests {
				h.pending = append(h.pending, req.ID)
			}
		}
	}

	h.turns = append(h.turns, t)
	return nil
}

// Snapshot returns a copy of all turns.
func (h *History) Snapshot() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Turn(nil), h.turns...)
}
