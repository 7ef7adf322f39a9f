package pack

import "errors"

// Domain errors for pack operations.
var (
	// ErrInvalidPack is returned when a pack is invalid.
	ErrInvalidPack = errors.New("invalid pack")

	// ErrUnknownKind is returned when no pack exists for a backend kind.
	ErrUnknownKind = errors.New("unknown backend kind")
)
