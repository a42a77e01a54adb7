// Package binding selects the QPU best suited to run a circuit.
//
// A binding request runs in three stages: the constraint filter removes QPUs
// that cannot run the circuit at all, the scorer ranks the survivors by a
// weighted objective, and the engine orders the ranking and picks the winner.
// Every stage is a pure computation over read-only inputs.
package binding

import "errors"

var (
	// ErrInvalidCircuitDescriptor is returned when the circuit violates its invariants
	ErrInvalidCircuitDescriptor = errors.New("invalid circuit descriptor")

	// ErrInvalidConfiguration is returned for negative, non-finite or all-zero weights
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidCatalog is returned when the QPU collection has nil entries,
	// empty ids or duplicate ids. Rejections are keyed by id, so ids must be unique.
	ErrInvalidCatalog = errors.New("invalid qpu catalog")
)
