package tool

import "errors"

// Domain errors for the tool system.
var (
	// ErrEmptyName indicates a tool was created with an empty name.
	ErrEmptyName = errors.New("tool name cannot be empty")

	// ErrNoHandler indicates a tool was created without a handler.
	ErrNoHandler = errors.New("tool has no handler")

	// ErrInvalidInput indicates the input could not be decoded or is
	// missing a required argument.
	ErrInvalidInput = errors.New("invalid tool input")
)
