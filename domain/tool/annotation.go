// Package tool provides the domain model for backend operations served to
// the assistant.
package tool

// Annotations describe how an operation behaves.
type Annotations struct {
	// ReadOnly indicates the operation has no side effects.
	ReadOnly bool `json:"read_only"`

	// Destructive indicates the operation may remove data.
	Destructive bool `json:"destructive"`

	// Idempotent indicates repeated calls with the same input are harmless.
	Idempotent bool `json:"idempotent"`
}

// DefaultAnnotations returns annotations for a mutating operation.
func DefaultAnnotations() Annotations {
	return Annotations{}
}

// ReadOnlyAnnotations returns annotations for a read-only operation.
func ReadOnlyAnnotations() Annotations {
	return Annotations{ReadOnly: true, Idempotent: true}
}

// CanRetry returns true if the operation can be safely retried on failure.
func (a Annotations) CanRetry() bool {
	return a.Idempotent || a.ReadOnly
}
