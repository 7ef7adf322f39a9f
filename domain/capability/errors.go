package capability

import "errors"

// Domain errors for capabilities and backends.
var (
	// ErrOperationNotFound indicates no live backend owns the operation.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrBackendExists indicates a backend with the same tag is registered.
	ErrBackendExists = errors.New("backend already registered")

	// ErrInvalidBackend indicates a backend handle is nil or has no tag.
	ErrInvalidBackend = errors.New("invalid backend")

	// ErrBackendUnavailable indicates a backend's preconditions are not met.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendFault indicates the backend reported an execution failure.
	ErrBackendFault = errors.New("backend fault")
)
