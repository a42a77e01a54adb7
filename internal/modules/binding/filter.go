package binding

import (
	"context"
	"fmt"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/rs/zerolog"
)

// Filter removes QPUs that cannot feasibly execute a circuit.
//
// Hard constraints are evaluated in a fixed order and the first failure
// becomes the QPU's single rejection reason:
//  1. availability
//  2. descriptor well-formedness
//  3. qubit capacity
//  4. native gate coverage
//  5. connectivity embedding
//  6. depth and shot limits
//  7. caller-supplied predicates
type Filter struct {
	embedding *embedding
	log       zerolog.Logger
}

// NewFilter creates a constraint filter. The exact search options bound the
// connectivity check per QPU; non-positive values select the defaults.
func NewFilter(opts Options, log zerolog.Logger) *Filter {
	return &Filter{
		embedding: newEmbedding(opts.ExactSearchMaxQubits, opts.ExactSearchNodeBudget, opts.ExactSearchTimeout),
		log:       log.With().Str("component", "constraint_filter").Logger(),
	}
}

// Apply partitions qpus into feasible ones (input order preserved) and
// rejections keyed by QPU id. Every QPU is evaluated on its own; neither the
// circuit nor the descriptors are modified.
func (f *Filter) Apply(ctx context.Context, circuit *domain.Circuit, qpus []*domain.QPU, predicates ...Predicate) ([]*domain.QPU, map[string]domain.Rejection) {
	required := circuit.GateSet()
	feasible := make([]*domain.QPU, 0, len(qpus))
	rejections := make(map[string]domain.Rejection)

	for _, qpu := range qpus {
		if rejection, rejected := f.evaluate(ctx, circuit, required, qpu, predicates); rejected {
			rejections[qpu.ID] = rejection
			f.log.Debug().
				Str("qpu", qpu.ID).
				Str("reason", rejection.String()).
				Msg("QPU rejected")
			continue
		}
		feasible = append(feasible, qpu)
	}

	return feasible, rejections
}

func (f *Filter) evaluate(ctx context.Context, circuit *domain.Circuit, required domain.GateSet, qpu *domain.QPU, predicates []Predicate) (domain.Rejection, bool) {
	if !qpu.Available {
		return domain.Rejection{Code: domain.RejectUnavailable}, true
	}

	if err := qpu.Validate(); err != nil {
		return domain.Rejection{Code: domain.RejectInvalidDescriptor, Detail: err.Error()}, true
	}

	if qpu.QubitCount < circuit.QubitCount {
		return domain.Rejection{
			Code:   domain.RejectInsufficientQubits,
			Detail: fmt.Sprintf("circuit needs %d qubits, qpu has %d", circuit.QubitCount, qpu.QubitCount),
		}, true
	}

	native := qpu.GateSet()
	var missing []string
	for _, gate := range required.Sorted() {
		if !native.Has(gate) {
			missing = append(missing, gate)
		}
	}
	if len(missing) > 0 {
		return domain.Rejection{Code: domain.RejectUnsupportedGates, Missing: missing}, true
	}

	if outcome, detail := f.embedding.check(ctx, circuit, qpu); outcome != embedFeasible {
		return domain.Rejection{Code: domain.RejectConnectivityUnsatisfiable, Detail: detail}, true
	}

	if detail := exceededLimit(circuit, qpu); detail != "" {
		return domain.Rejection{Code: domain.RejectExceedsLimits, Detail: detail}, true
	}

	var violated []string
	var detail string
	for _, p := range predicates {
		ok, err := p.Holds(circuit, qpu)
		if ok {
			continue
		}
		violated = append(violated, p.Label())
		if err != nil && detail == "" {
			detail = fmt.Sprintf("%s: %v", p.Label(), err)
		}
	}
	if len(violated) > 0 {
		return domain.Rejection{Code: domain.RejectConstraintViolated, Missing: violated, Detail: detail}, true
	}

	return domain.Rejection{}, false
}

// exceededLimit describes the first QPU limit the circuit exceeds. Unknown
// circuit values and unlimited QPUs never conflict.
func exceededLimit(circuit *domain.Circuit, qpu *domain.QPU) string {
	if qpu.MaxDepth > 0 && circuit.Depth > qpu.MaxDepth {
		return fmt.Sprintf("circuit depth %d exceeds max_depth %d", circuit.Depth, qpu.MaxDepth)
	}
	if qpu.MaxShots > 0 && circuit.Shots > qpu.MaxShots {
		return fmt.Sprintf("%d shots exceed max_shots %d", circuit.Shots, qpu.MaxShots)
	}
	return ""
}
