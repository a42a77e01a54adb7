package binding

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/stretchr/testify/assert"
)

func linePairs(n int) []domain.Pair {
	pairs := make([]domain.Pair, 0, n-1)
	for i := 0; i+1 < n; i++ {
		pairs = append(pairs, domain.Pair{i, i + 1})
	}
	return pairs
}

func ringPairs(n int) []domain.Pair {
	return append(linePairs(n), domain.Pair{0, n - 1})
}

func gridPairs(rows, cols int) []domain.Pair {
	var pairs []domain.Pair
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			q := r*cols + c
			if c+1 < cols {
				pairs = append(pairs, domain.Pair{q, q + 1})
			}
			if r+1 < rows {
				pairs = append(pairs, domain.Pair{q, q + cols})
			}
		}
	}
	return pairs
}

func topologyQPU(qubits int, couplers []domain.Pair) *domain.QPU {
	return &domain.QPU{ID: "topo", QubitCount: qubits, Couplers: couplers, Available: true}
}

func TestEmbeddingCheck(t *testing.T) {
	triangle := []domain.Pair{{0, 1}, {1, 2}, {0, 2}}

	tests := []struct {
		name     string
		qubits   int
		pairs    []domain.Pair
		qpu      *domain.QPU
		expected embedOutcome
	}{
		{"no interactions", 5, nil, topologyQPU(5, nil), embedFeasible},
		{"line into longer line", 3, linePairs(3), topologyQPU(4, linePairs(4)), embedFeasible},
		{"non-identity mapping", 3, []domain.Pair{{0, 2}}, topologyQPU(3, linePairs(3)), embedFeasible},
		{"ring into grid", 4, ringPairs(4), topologyQPU(9, gridPairs(3, 3)), embedFeasible},
		{"line of six into grid", 6, linePairs(6), topologyQPU(9, gridPairs(3, 3)), embedFeasible},
		{"triangle into line fails degree check", 3, triangle, topologyQPU(4, linePairs(4)), embedInfeasible},
		{"star into line fails degree check", 4, []domain.Pair{{0, 1}, {0, 2}, {0, 3}}, topologyQPU(5, linePairs(5)), embedInfeasible},
		{"too many couplings", 4, ringPairs(4), topologyQPU(4, linePairs(4)), embedInfeasible},
		{"triangle into ring needs exact search", 3, triangle, topologyQPU(4, ringPairs(4)), embedInfeasible},
		{"no couplers at all", 2, []domain.Pair{{0, 1}}, topologyQPU(4, nil), embedInfeasible},
		{"component larger than any qpu region", 3, linePairs(3), topologyQPU(4, []domain.Pair{{0, 1}, {2, 3}}), embedInfeasible},
	}

	e := newEmbedding(0, 0, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			circuit := domain.NewCircuit(tt.qubits, nil, tt.pairs)
			outcome, detail := e.check(context.Background(), circuit, tt.qpu)
			assert.Equal(t, tt.expected, outcome, detail)
			if outcome != embedFeasible {
				assert.NotEmpty(t, detail)
			}
		})
	}
}

func TestEmbeddingCheck_AboveExactLimitIsInconclusive(t *testing.T) {
	triangle := domain.NewCircuit(3, nil, []domain.Pair{{0, 1}, {1, 2}, {0, 2}})
	e := newEmbedding(2, 0, 0)

	outcome, detail := e.check(context.Background(), triangle, topologyQPU(4, ringPairs(4)))
	assert.Equal(t, embedInconclusive, outcome)
	assert.Contains(t, detail, "exact search limit")
}

func TestEmbeddingCheck_BudgetExhaustedIsInconclusive(t *testing.T) {
	triangle := domain.NewCircuit(3, nil, []domain.Pair{{0, 1}, {1, 2}, {0, 2}})
	e := newEmbedding(16, 1, 0)

	outcome, detail := e.check(context.Background(), triangle, topologyQPU(4, ringPairs(4)))
	assert.Equal(t, embedInconclusive, outcome)
	assert.Contains(t, detail, "budget")
}

func TestEmbeddingCheck_ExpiredDeadlineDegrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEmbedding(0, 0, 0)

	// Identity mapping works without searching, so the deadline does not matter.
	outcome, _ := e.check(ctx, domain.NewCircuit(3, nil, linePairs(3)), topologyQPU(4, linePairs(4)))
	assert.Equal(t, embedFeasible, outcome)

	// The greedy pass is bounded by size, not time.
	outcome, _ = e.check(ctx, domain.NewCircuit(3, nil, []domain.Pair{{0, 2}}), topologyQPU(3, linePairs(3)))
	assert.Equal(t, embedFeasible, outcome)

	// A mapping that needs exact search cannot be proven once the deadline is gone.
	triangle := domain.NewCircuit(3, nil, []domain.Pair{{0, 1}, {1, 2}, {0, 2}})
	outcome, detail := e.check(ctx, triangle, topologyQPU(4, ringPairs(4)))
	assert.Equal(t, embedInconclusive, outcome)
	assert.Contains(t, detail, "deadline")
}

func TestEmbeddingCheck_ExactTimeoutIsPerCall(t *testing.T) {
	// A triangle on a six-ring defeats the greedy pass; proving it impossible
	// takes the exact search a handful of nodes.
	triangle := domain.NewCircuit(3, nil, []domain.Pair{{0, 1}, {1, 2}, {0, 2}})
	e := newEmbedding(0, 0, time.Minute)

	for i := 0; i < 3; i++ {
		outcome, detail := e.check(context.Background(), triangle, topologyQPU(6, ringPairs(6)))
		assert.Equal(t, embedInfeasible, outcome, detail)
	}
}

func TestEmbeddingCheck_SparseHighIndexCouplers(t *testing.T) {
	circuit := domain.NewCircuit(3, nil, linePairs(3))
	qpu := topologyQPU(domain.MaxQubitCount, []domain.Pair{{700000, 700001}, {700001, 700002}})

	outcome, detail := newEmbedding(0, 0, 0).check(context.Background(), circuit, qpu)
	assert.Equal(t, embedFeasible, outcome, detail)
}

func TestEmbeddingSearch_MappingIsValid(t *testing.T) {
	pattern := newQubitGraph(6, linePairs(6))
	target := newQubitGraph(9, gridPairs(3, 3))

	s := newEmbeddingSearch(context.Background(), pattern, target, DefaultExactSearchNodeBudget)
	assert.True(t, s.run())

	used := make(map[int]bool)
	for _, u := range pattern.nodes {
		tu := s.mapping[u]
		assert.False(t, used[tu], "mapping must be injective")
		used[tu] = true
		for _, v := range pattern.adj[u] {
			assert.True(t, target.hasEdge(tu, s.mapping[v]))
		}
	}
}

func TestPlacementOrder_IsConnectivityFirst(t *testing.T) {
	// star centered on 3 plus a pendant 0-4
	pattern := newQubitGraph(5, []domain.Pair{{3, 0}, {3, 1}, {3, 2}, {0, 4}})

	order := placementOrder(pattern)
	assert.Equal(t, 3, order[0], "highest degree first")
	assert.Equal(t, 0, order[1], "then the highest degree neighbor")
	assert.Len(t, order, 5)
}

func TestQubitGraph_CountsIsolatedQubits(t *testing.T) {
	g := newQubitGraph(10, []domain.Pair{{2, 3}, {3, 4}, {3, 2}, {9, 9}})

	assert.Equal(t, []int{2, 3, 4}, g.nodes)
	assert.Equal(t, 2, g.edges)
	assert.Equal(t, 7, g.isolated)
	assert.Equal(t, []int{2, 1, 1}, g.degreeSequence())
	assert.Equal(t, 3, g.largestComponent())
	assert.Equal(t, 0, g.degree(0))

	assert.Equal(t, 1, newQubitGraph(4, nil).largestComponent())
}
