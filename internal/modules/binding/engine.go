package binding

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/rs/zerolog"
)

// scoreResolution is the grid scores are compared on; scores closer than
// this are ties and fall through to the cost and id tie-breaks.
const scoreResolution = 1e-9

// Options tunes the connectivity search
type Options struct {
	// ExactSearchMaxQubits is the largest number of interacting circuit
	// qubits for which the exact embedding search runs.
	ExactSearchMaxQubits int
	// ExactSearchTimeout bounds the time spent in exact search for one QPU;
	// zero means no deadline beyond the caller's context.
	ExactSearchTimeout time.Duration
	// ExactSearchNodeBudget bounds search nodes per QPU.
	ExactSearchNodeBudget int
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		ExactSearchMaxQubits:  DefaultExactSearchMaxQubits,
		ExactSearchTimeout:    250 * time.Millisecond,
		ExactSearchNodeBudget: DefaultExactSearchNodeBudget,
	}
}

// Engine is the single entry point for binding a circuit to a QPU.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	filter *Filter
	scorer *Scorer
	log    zerolog.Logger
}

// NewEngine creates a binding engine
func NewEngine(opts Options, log zerolog.Logger) *Engine {
	return &Engine{
		filter: NewFilter(opts, log),
		scorer: NewScorer(log),
		log:    log.With().Str("component", "binding_engine").Logger(),
	}
}

// Bind filters qpus against the circuit and any extra constraints, scores the
// feasible ones and picks the best. An empty feasible set is a normal result
// with no selection.
//
// ctx only bounds the exact connectivity search; when it expires the search
// degrades to the conservative approximation instead of failing the call.
func (e *Engine) Bind(ctx context.Context, circuit *domain.Circuit, qpus []*domain.QPU, weights domain.Weights, constraints ...domain.Constraint) (*domain.BindingResult, error) {
	if err := circuit.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCircuitDescriptor, err)
	}
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	predicates, err := CompilePredicates(constraints)
	if err != nil {
		return nil, err
	}
	if err := validateCatalog(qpus); err != nil {
		return nil, err
	}

	// Work on a canonical copy so gate order and pair form are fixed.
	canonical := domain.NewCircuit(circuit.QubitCount, circuit.RequiredGates, circuit.InteractionPairs)
	canonical.Depth = circuit.Depth
	canonical.Shots = circuit.Shots

	feasible, rejections := e.filter.Apply(ctx, canonical, qpus, predicates...)

	result := &domain.BindingResult{
		Ranked:     []domain.RankedQPU{},
		Rejections: rejections,
	}

	if len(feasible) == 0 {
		e.log.Debug().
			Int("candidates", len(qpus)).
			Int("rejected", len(rejections)).
			Msg("No feasible QPU")
		return result, nil
	}

	ranked, missing := e.scorer.Score(canonical, feasible, weights)
	for id, rejection := range missing {
		result.Rejections[id] = rejection
	}

	SortRanked(ranked)
	if len(ranked) > 0 {
		result.Ranked = ranked
		result.Selected = ranked[0].ID
	}

	e.log.Debug().
		Int("candidates", len(qpus)).
		Int("feasible", len(ranked)).
		Int("rejected", len(result.Rejections)).
		Str("selected", result.Selected).
		Msg("Binding decided")

	return result, nil
}

// SortRanked orders candidates by descending score, then ascending
// cost_per_shot, then ascending id.
func SortRanked(ranked []domain.RankedQPU) {
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scoreKey(ranked[i].Score), scoreKey(ranked[j].Score)
		if si != sj {
			return si > sj
		}
		if ranked[i].CostPerShot != ranked[j].CostPerShot {
			return ranked[i].CostPerShot < ranked[j].CostPerShot
		}
		return ranked[i].ID < ranked[j].ID
	})
}

func scoreKey(score float64) int64 {
	return int64(math.Round(score / scoreResolution))
}

func validateCatalog(qpus []*domain.QPU) error {
	seen := make(map[string]struct{}, len(qpus))
	for i, qpu := range qpus {
		if qpu == nil {
			return fmt.Errorf("%w: entry %d is nil", ErrInvalidCatalog, i)
		}
		if qpu.ID == "" {
			return fmt.Errorf("%w: entry %d has an empty id", ErrInvalidCatalog, i)
		}
		if _, dup := seen[qpu.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidCatalog, qpu.ID)
		}
		seen[qpu.ID] = struct{}{}
	}
	return nil
}
