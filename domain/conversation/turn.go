// Package conversation models the append-only dialogue between the user,
// the model, and the storage backends.
package conversation

import (
	"encoding/json"
	"fmt"
)

// Role tags a turn with its speaker.
type Role string

// Turn roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// OperationRequest is a model-issued request to run a named operation.
type OperationRequest struct {
	// ID correlates the request with its tool turn.
	ID string `json:"id"`

	// Name is the operation name.
	Name string `json:"name"`

	// Arguments holds the decoded arguments.
	Arguments map[string]any `json:"arguments,omitempty"`

	// RawArguments is the argument text exactly as the model produced it.
	RawArguments string `json:"raw_arguments,omitempty"`

	// ParseError is set when RawArguments could not be decoded.
	ParseError error `json:"-"`
}

// ParseRequest decodes model-produced argument text. An empty text yields
// empty arguments. Decoding failures are recorded on the request, not
// returned, so the request still gets a tool turn.
func ParseRequest(id, name, raw string) OperationRequest {
	req := OperationRequest{ID: id, Name: name, RawArguments: raw}
	if raw == "" {
		req.Arguments = map[string]any{}
		return req
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		req.ParseError = fmt.Errorf("decode arguments for %s: %w", name, err)
		return req
	}
	if args == nil {
		args = map[string]any{}
	}
	req.Arguments = args
	return req
}

// Turn is one entry in the conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Requests is set on assistant turns that ask for operations.
	Requests []OperationRequest `json:"requests,omitempty"`

	// RequestID is set on tool turns and names the request they answer.
	RequestID string `json:"request_id,omitempty"`

	// Name is the operation name on tool turns.
	Name string `json:"name,omitempty"`
}

// SystemTurn creates the system instruction turn.
func SystemTurn(content string) Turn {
	return Turn{Role: RoleSystem, Content: content}
}

// UserTurn creates a user turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn creates an assistant turn.
func AssistantTurn(content string, requests []OperationRequest) Turn {
	return Turn{Role: RoleAssistant, Content: content, Requests: requests}
}

// ToolTurn creates the result turn for a request.
func ToolTurn(req OperationRequest, content string) Turn {
	return Turn{Role: RoleTool, Content: content, RequestID: req.ID, Name: req.Name}
}
