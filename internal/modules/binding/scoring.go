package binding

import (
	"math"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// candidate carries the raw criterion values of one feasible QPU
type candidate struct {
	qpu      *domain.QPU
	fidelity float64
}

// criterion describes one scoring dimension. To add a criterion, add a
// weight field to domain.Weights, a field to domain.CriterionScores and an
// entry to the criteria table.
type criterion struct {
	name           string
	higherIsBetter bool
	weight         func(w domain.Weights) float64
	raw            func(c candidate) float64
	assign         func(s *domain.CriterionScores, v float64)
}

var criteria = []criterion{
	{
		name:           "fidelity",
		higherIsBetter: true,
		weight:         func(w domain.Weights) float64 { return w.Fidelity },
		raw:            func(c candidate) float64 { return c.fidelity },
		assign:         func(s *domain.CriterionScores, v float64) { s.Fidelity = v },
	},
	{
		name:   "latency",
		weight: func(w domain.Weights) float64 { return w.Latency },
		raw:    func(c candidate) float64 { return c.qpu.Workload },
		assign: func(s *domain.CriterionScores, v float64) { s.Latency = v },
	},
	{
		name:   "cost",
		weight: func(w domain.Weights) float64 { return w.Cost },
		raw:    func(c candidate) float64 { return c.qpu.CostPerShot },
		assign: func(s *domain.CriterionScores, v float64) { s.Cost = v },
	},
}

// Scorer ranks feasible QPUs by a weighted sum of min-max normalized criteria.
type Scorer struct {
	log zerolog.Logger
}

// NewScorer creates a scorer
func NewScorer(log zerolog.Logger) *Scorer {
	return &Scorer{log: log.With().Str("component", "scorer").Logger()}
}

// Score returns one unsorted entry per scorable QPU, in input order, plus
// MissingFidelityData rejections for QPUs that lack calibration data for a
// required gate. Weights must already be validated.
func (s *Scorer) Score(circuit *domain.Circuit, feasible []*domain.QPU, weights domain.Weights) ([]domain.RankedQPU, map[string]domain.Rejection) {
	rejections := make(map[string]domain.Rejection)
	candidates := make([]candidate, 0, len(feasible))

	for _, qpu := range feasible {
		fidelity, missing := AggregateFidelity(qpu, circuit.RequiredGates)
		if len(missing) > 0 {
			rejections[qpu.ID] = domain.Rejection{
				Code:    domain.RejectMissingFidelityData,
				Missing: missing,
				Detail:  "no specific or default fidelity entry",
			}
			continue
		}
		candidates = append(candidates, candidate{qpu: qpu, fidelity: fidelity})
	}

	if len(candidates) == 0 {
		return nil, rejections
	}

	normalized := normalizeWeights(weights)
	ranked := make([]domain.RankedQPU, len(candidates))
	for i, c := range candidates {
		ranked[i] = domain.RankedQPU{
			ID:          c.qpu.ID,
			Fidelity:    c.fidelity,
			Workload:    c.qpu.Workload,
			CostPerShot: c.qpu.CostPerShot,
		}
	}

	values := make([]float64, len(candidates))
	for ci, crit := range criteria {
		for i, c := range candidates {
			values[i] = crit.raw(c)
		}
		lo, hi := floats.Min(values), floats.Max(values)
		for i := range candidates {
			v := minMax(values[i], lo, hi, crit.higherIsBetter)
			crit.assign(&ranked[i].Components, v)
			ranked[i].Score += normalized[ci] * v
		}
	}

	for i := range ranked {
		ranked[i].Score = clamp01(ranked[i].Score)
	}

	s.log.Debug().
		Int("scored", len(ranked)).
		Int("missing_fidelity", len(rejections)).
		Msg("Scored feasible QPUs")

	return ranked, rejections
}

// AggregateFidelity returns the product of the per-gate fidelities of the
// required gates, multiplied in the given (sorted) order. Gates without a
// specific or default entry are returned as missing.
func AggregateFidelity(qpu *domain.QPU, gates []string) (float64, []string) {
	product := 1.0
	var missing []string
	for _, gate := range gates {
		f, ok := qpu.GateFidelity(gate)
		if !ok {
			missing = append(missing, domain.NormalizeGate(gate))
			continue
		}
		product *= f
	}
	return product, missing
}

// normalizeWeights returns the criterion weights, in criteria table order,
// scaled to sum to one.
func normalizeWeights(w domain.Weights) []float64 {
	out := make([]float64, len(criteria))
	for i, crit := range criteria {
		out[i] = crit.weight(w)
	}
	sum := floats.Sum(out)
	if sum > 0 {
		floats.Scale(1/sum, out)
	}
	return out
}

// minMax maps v into [0,1] so the best observed value is 1 and the worst 0.
// When every candidate shares the value, all receive full credit.
func minMax(v, lo, hi float64, higherIsBetter bool) float64 {
	span := hi - lo
	if span <= 0 {
		return 1.0
	}
	if higherIsBetter {
		return (v - lo) / span
	}
	return (hi - v) / span
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
