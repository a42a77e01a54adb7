package domain

import "context"

// CircuitParser turns circuit-description text into a circuit descriptor.
// This interface keeps the binding handlers independent of the notation.
type CircuitParser interface {
	Parse(source string) (*Circuit, error)
}

// QPUSource supplies QPU descriptors from some inventory (file, database,
// object store, mock). Implementations return fresh descriptors on every call;
// callers publish them as an immutable snapshot.
type QPUSource interface {
	// Name identifies the source in logs and snapshot metadata
	Name() string

	// Load returns the current descriptors
	Load(ctx context.Context) ([]*QPU, error)
}
