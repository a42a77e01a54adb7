package binding

import (
	"testing"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateFidelity(t *testing.T) {
	qpu := &domain.QPU{Fidelity: map[string]float64{"h": 0.99, "cx": 0.95}}

	f, missing := AggregateFidelity(qpu, []string{"cx", "h"})
	assert.Empty(t, missing)
	assert.InDelta(t, 0.99*0.95, f, 1e-12)

	f, missing = AggregateFidelity(qpu, nil)
	assert.Empty(t, missing)
	assert.Equal(t, 1.0, f, "no gates means nothing can fail")

	_, missing = AggregateFidelity(qpu, []string{"cx", "rz", "sx"})
	assert.Equal(t, []string{"rz", "sx"}, missing)

	qpu.Fidelity["default"] = 0.9
	f, missing = AggregateFidelity(qpu, []string{"h", "rz"})
	assert.Empty(t, missing)
	assert.InDelta(t, 0.99*0.9, f, 1e-12)
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, 1.0, minMax(5, 5, 5, true), "degenerate criterion gives full credit")
	assert.Equal(t, 1.0, minMax(5, 5, 5, false))
	assert.Equal(t, 1.0, minMax(10, 0, 10, true))
	assert.Equal(t, 0.0, minMax(10, 0, 10, false))
	assert.InDelta(t, 0.25, minMax(2.5, 0, 10, true), 1e-12)
	assert.InDelta(t, 0.75, minMax(2.5, 0, 10, false), 1e-12)
}

func TestNormalizeWeights(t *testing.T) {
	w := normalizeWeights(domain.Weights{Fidelity: 3, Latency: 1, Cost: 0})
	require.Len(t, w, len(criteria))
	assert.InDelta(t, 0.75, w[0], 1e-12)
	assert.InDelta(t, 0.25, w[1], 1e-12)
	assert.InDelta(t, 0.0, w[2], 1e-12)

	// Scale invariance
	w2 := normalizeWeights(domain.Weights{Fidelity: 300, Latency: 100})
	assert.InDeltaSlice(t, w, w2, 1e-12)
}

func TestScore_MissingFidelityIsIsolated(t *testing.T) {
	circuit := domain.NewCircuit(2, []string{"h", "cx"}, nil)
	good := lineQPU("good", 2, []string{"h", "cx"}, map[string]float64{"h": 0.99, "cx": 0.9}, 1, 1)
	bad := lineQPU("bad", 2, []string{"h", "cx"}, map[string]float64{"h": 0.99}, 1, 1)

	s := NewScorer(zerolog.Nop())
	ranked, rejections := s.Score(circuit, []*domain.QPU{bad, good}, domain.Weights{Fidelity: 1})

	require.Len(t, ranked, 1)
	assert.Equal(t, "good", ranked[0].ID)
	require.Contains(t, rejections, "bad")
	assert.Equal(t, domain.RejectMissingFidelityData, rejections["bad"].Code)
	assert.Equal(t, []string{"cx"}, rejections["bad"].Missing)
}

func TestScore_ComponentsAndBounds(t *testing.T) {
	circuit := domain.NewCircuit(2, []string{"h"}, nil)
	a := lineQPU("a", 2, []string{"h"}, map[string]float64{"h": 0.99}, 10, 0.5)
	b := lineQPU("b", 2, []string{"h"}, map[string]float64{"h": 0.90}, 0, 0.1)
	c := lineQPU("c", 2, []string{"h"}, map[string]float64{"h": 0.95}, 5, 0.3)

	s := NewScorer(zerolog.Nop())
	ranked, rejections := s.Score(circuit, []*domain.QPU{a, b, c}, domain.Weights{Fidelity: 2, Latency: 1, Cost: 1})
	require.Empty(t, rejections)
	require.Len(t, ranked, 3)

	byID := make(map[string]domain.RankedQPU)
	for _, r := range ranked {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		byID[r.ID] = r
	}

	assert.Equal(t, 1.0, byID["a"].Components.Fidelity)
	assert.Equal(t, 0.0, byID["a"].Components.Latency)
	assert.Equal(t, 0.0, byID["a"].Components.Cost)
	assert.Equal(t, 0.0, byID["b"].Components.Fidelity)
	assert.Equal(t, 1.0, byID["b"].Components.Latency)
	assert.InDelta(t, 0.5, byID["c"].Components.Latency, 1e-12)
	assert.InDelta(t, 0.5, byID["c"].Components.Cost, 1e-12)

	// a: 0.5*1, b: 0.25*1 + 0.25*1, c: 0.5*(5/9) + 0.25*0.5 + 0.25*0.5
	assert.InDelta(t, 0.5, byID["a"].Score, 1e-9)
	assert.InDelta(t, 0.5, byID["b"].Score, 1e-9)
	assert.InDelta(t, 0.5*(0.05/0.09)+0.25, byID["c"].Score, 1e-9)
}
