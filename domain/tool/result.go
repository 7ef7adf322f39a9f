package tool

import (
	"encoding/json"
	"fmt"
)

// Result contains the output of a tool execution.
type Result struct {
	// Output is the JSON document returned to the caller.
	Output json.RawMessage `json:"output"`
}

// NewResult creates a result with the given output.
func NewResult(output json.RawMessage) Result {
	return Result{Output: output}
}

// JSONResult marshals v into a result.
func JSONResult(v any) (Result, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("marshal output: %w", err)
	}
	return Result{Output: out}, nil
}

// OutputString returns the output as a string for convenience.
func (r Result) OutputString() string {
	return string(r.Output)
}

// Decode unmarshals tool input into v. Empty input leaves v unchanged.
func Decode(input json.RawMessage, v any) error {
	if len(input) == 0 || string(input) == "null" {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Require returns ErrInvalidInput naming the first empty argument.
func Require(args ...[2]string) error {
	for _, a := range args {
		if a[1] == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, a[0])
		}
	}
	return nil
}
