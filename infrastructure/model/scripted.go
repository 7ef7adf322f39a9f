package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrScriptExhausted is returned when a scripted provider runs out of steps.
var ErrScriptExhausted = errors.New("script exhausted")

// ScriptStep is one canned model response.
type ScriptStep struct {
	// Content is the assistant text.
	Content string `yaml:"content"`

	// ToolCalls are the operations the response requests.
	ToolCalls []ToolCall `yaml:"tool_calls"`

	// Err, when set, is returned instead of a response.
	Err error `yaml:"-"`

	// Condition is an optional check on the request; a failing check is an
	// error.
	Condition func(CompletionRequest) bool `yaml:"-"`
}

// Reply is a step answering with text.
func Reply(content string) ScriptStep {
	return ScriptStep{Content: content}
}

// Call is a step requesting one operation.
func Call(name, arguments string) ScriptStep {
	return ScriptStep{ToolCalls: []ToolCall{{Name: name, Arguments: arguments}}}
}

// ScriptedProvider returns a predefined sequence of responses for
// deterministic tests and offline demos.
type ScriptedProvider struct {
	steps       []ScriptStep
	index       int
	onExhausted func(CompletionRequest) (CompletionResponse, error)
	requests    []CompletionRequest
	mu          sync.Mutex
}

// NewScriptedProvider creates a scripted provider with the given steps.
func NewScriptedProvider(steps ...ScriptStep) *ScriptedProvider {
	return &ScriptedProvider{
		steps: steps,
		onExhausted: func(CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{}, ErrScriptExhausted
		},
	}
}

// OnExhausted sets the handler for requests past the last step.
func (p *ScriptedProvider) OnExhausted(handler func(CompletionRequest) (CompletionResponse, error)) *ScriptedProvider {
	p.onExhausted = handler
	return p
}

// Name returns the provider name.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Complete returns the next scripted response. Tool calls without an id get
// a fresh one.
func (p *ScriptedProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.index >= len(p.steps) {
		return p.onExhausted(req)
	}

	step := p.steps[p.index]
	if step.Condition != nil && !step.Condition(req) {
		return CompletionResponse{}, &ConditionFailedError{StepIndex: p.index}
	}
	p.index++
	if step.Err != nil {
		return CompletionResponse{}, step.Err
	}

	msg := Message{Role: RoleAssistant, Content: step.Content}
	for _, tc := range step.ToolCalls {
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		msg.ToolCalls = append(msg.ToolCalls, tc)
	}
	return CompletionResponse{
		ID:      uuid.NewString(),
		Model:   "scripted",
		Message: msg,
	}, nil
}

// Requests returns every request received so far.
func (p *ScriptedProvider) Requests() []CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompletionRequest(nil), p.requests...)
}

// Reset resets the provider to the beginning.
func (p *ScriptedProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = 0
	p.requests = nil
}

// CurrentStep returns the current step index.
func (p *ScriptedProvider) CurrentStep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// IsComplete returns true if all steps have been used.
func (p *ScriptedProvider) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index >= len(p.steps)
}

// ConditionFailedError indicates a step condition was not met.
type ConditionFailedError struct {
	StepIndex int
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition failed at step %d", e.StepIndex)
}

// LoadScript reads a YAML list of steps:
//
//	- tool_calls:
//	    - name: list_files
//	      arguments: '{"directory":"~/Documents"}'
//	- content: Your Documents folder holds two files.
func LoadScript(path string) ([]ScriptStep, error) {
	if path == "" {
		return nil, errors.New("scripted provider needs a script file")
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var steps []ScriptStep
	if err := yaml.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	return steps, nil
}
