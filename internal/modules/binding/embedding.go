package binding

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
)

// Defaults for the exact connectivity search
const (
	DefaultExactSearchMaxQubits  = 16
	DefaultExactSearchNodeBudget = 200000

	// deadlineCheckInterval is how many search nodes pass between context checks
	deadlineCheckInterval = 1024
)

type embedOutcome int

const (
	embedFeasible embedOutcome = iota
	embedInfeasible
	embedInconclusive
)

// embedding answers whether a circuit's interaction graph can be mapped
// injectively onto a QPU's coupling graph.
//
// Only two answers are trusted: a mapping that was found and verified, or a
// necessary condition that fails. Anything else is reported as inconclusive,
// which the filter treats as infeasible, so the check can produce false
// negatives but never false positives.
//
// The identity and greedy passes are bounded by size alone and never look at
// the deadline, so their answer for a QPU does not depend on how long other
// QPUs took. Only the exact search is bounded by time: each QPU gets its own
// exactTimeout window, further cut short by the caller's context.
type embedding struct {
	exactMaxQubits int
	nodeBudget     int
	exactTimeout   time.Duration // 0 means only the caller's context
}

func newEmbedding(exactMaxQubits, nodeBudget int, exactTimeout time.Duration) *embedding {
	if exactMaxQubits <= 0 {
		exactMaxQubits = DefaultExactSearchMaxQubits
	}
	if nodeBudget <= 0 {
		nodeBudget = DefaultExactSearchNodeBudget
	}
	return &embedding{exactMaxQubits: exactMaxQubits, nodeBudget: nodeBudget, exactTimeout: exactTimeout}
}

// check returns the outcome and a short explanation for rejections
func (e *embedding) check(ctx context.Context, circuit *domain.Circuit, qpu *domain.QPU) (embedOutcome, string) {
	if len(circuit.InteractionPairs) == 0 {
		return embedFeasible, ""
	}

	pattern := newQubitGraph(circuit.QubitCount, circuit.InteractionPairs)
	target := newQubitGraph(qpu.QubitCount, qpu.Couplers)

	if reason := necessaryConditions(pattern, target); reason != "" {
		return embedInfeasible, reason
	}

	if identityEmbeds(pattern, target) {
		return embedFeasible, ""
	}

	// One greedy descent: cheap, and any mapping it finds is valid.
	s := newEmbeddingSearch(context.Background(), pattern, target, len(pattern.nodes))
	if s.run() {
		return embedFeasible, ""
	}

	if len(pattern.nodes) > e.exactMaxQubits {
		return embedInconclusive, fmt.Sprintf("no mapping found by heuristic search; %d interacting qubits exceed exact search limit %d",
			len(pattern.nodes), e.exactMaxQubits)
	}

	exactCtx := ctx
	if e.exactTimeout > 0 {
		var cancel context.CancelFunc
		exactCtx, cancel = context.WithTimeout(ctx, e.exactTimeout)
		defer cancel()
	}

	s = newEmbeddingSearch(exactCtx, pattern, target, e.nodeBudget)
	if s.run() {
		return embedFeasible, ""
	}
	switch {
	case s.timedOut:
		return embedInconclusive, "exact search deadline exceeded"
	case s.exhaustedBudget:
		return embedInconclusive, fmt.Sprintf("exact search budget of %d nodes exhausted", e.nodeBudget)
	}
	return embedInfeasible, "no injective qubit mapping preserves the required interactions"
}

// necessaryConditions returns a non-empty reason when the pattern provably
// cannot embed into the target.
func necessaryConditions(pattern, target *qubitGraph) string {
	if pattern.edges > target.edges {
		return fmt.Sprintf("circuit needs %d distinct couplings, qpu has %d", pattern.edges, target.edges)
	}

	// The i-th largest pattern degree must not exceed the i-th largest target
	// degree. Interacting qubits can only land on coupled ones.
	pd := pattern.degreeSequence()
	td := target.degreeSequence()
	if len(pd) > len(td) {
		return fmt.Sprintf("circuit has %d interacting qubits, qpu has %d coupled qubits", len(pd), len(td))
	}
	for i := range pd {
		if pd[i] > td[i] {
			return fmt.Sprintf("degree sequence incompatible: circuit qubit needs %d neighbors, qpu offers %d", pd[i], td[i])
		}
	}

	if pc, tc := pattern.largestComponent(), target.largestComponent(); pc > tc {
		return fmt.Sprintf("circuit has a connected block of %d qubits, largest connected qpu region has %d", pc, tc)
	}

	return ""
}

// identityEmbeds reports whether mapping each logical qubit to the physical
// qubit with the same index satisfies every interaction.
func identityEmbeds(pattern, target *qubitGraph) bool {
	for _, u := range pattern.nodes {
		if u >= target.size {
			return false
		}
		for _, v := range pattern.adj[u] {
			if v > u && !target.hasEdge(u, v) {
				return false
			}
		}
	}
	return true
}

// embeddingSearch is a depth-first subgraph-monomorphism search. Pattern
// nodes are placed in a connectivity-first order so each new node is
// constrained by already placed neighbors.
type embeddingSearch struct {
	ctx     context.Context
	pattern *qubitGraph
	target  *qubitGraph
	budget  int

	order   []int
	mapping map[int]int  // pattern -> target
	used    map[int]bool // target node taken
	visited int

	timedOut        bool
	exhaustedBudget bool
}

func newEmbeddingSearch(ctx context.Context, pattern, target *qubitGraph, budget int) *embeddingSearch {
	return &embeddingSearch{
		ctx:     ctx,
		pattern: pattern,
		target:  target,
		budget:  budget,
		order:   placementOrder(pattern),
		mapping: make(map[int]int, len(pattern.nodes)),
		used:    make(map[int]bool, len(pattern.nodes)),
	}
}

func (s *embeddingSearch) run() bool {
	return s.place(0) && s.verify()
}

func (s *embeddingSearch) place(depth int) bool {
	if depth == len(s.order) {
		return true
	}
	if s.stop() {
		return false
	}

	u := s.order[depth]
	for _, c := range s.candidates(u) {
		s.mapping[u] = c
		s.used[c] = true
		if s.place(depth + 1) {
			return true
		}
		delete(s.mapping, u)
		delete(s.used, c)
		if s.timedOut || s.exhaustedBudget {
			return false
		}
	}
	return false
}

func (s *embeddingSearch) stop() bool {
	s.visited++
	if s.visited > s.budget {
		s.exhaustedBudget = true
		return true
	}
	if (s.visited-1)%deadlineCheckInterval == 0 && s.ctx.Err() != nil {
		s.timedOut = true
		return true
	}
	return false
}

// candidates returns target nodes that u can map to given the current partial mapping
func (s *embeddingSearch) candidates(u int) []int {
	need := s.pattern.degree(u)

	var pool []int
	anchored := false
	for _, w := range s.pattern.adj[u] {
		if tw, ok := s.mapping[w]; ok {
			pool = s.target.adj[tw]
			anchored = true
			break
		}
	}
	if !anchored {
		pool = s.target.byDegree()
	}

	out := make([]int, 0, len(pool))
	for _, c := range pool {
		if s.used[c] || s.target.degree(c) < need {
			continue
		}
		ok := true
		for _, w := range s.pattern.adj[u] {
			if tw, placed := s.mapping[w]; placed && !s.target.hasEdge(tw, c) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}

// verify re-checks the complete mapping against every pattern edge
func (s *embeddingSearch) verify() bool {
	seen := make(map[int]struct{}, len(s.mapping))
	for _, u := range s.pattern.nodes {
		t, ok := s.mapping[u]
		if !ok {
			return false
		}
		if _, dup := seen[t]; dup {
			return false
		}
		seen[t] = struct{}{}
		for _, v := range s.pattern.adj[u] {
			if !s.target.hasEdge(t, s.mapping[v]) {
				return false
			}
		}
	}
	return true
}

// placementOrder starts from the highest-degree node and repeatedly takes the
// node with the most placed neighbors. Ties go to higher degree, then lower index.
func placementOrder(pattern *qubitGraph) []int {
	placed := make(map[int]bool, len(pattern.nodes))
	order := make([]int, 0, len(pattern.nodes))

	for len(order) < len(pattern.nodes) {
		best, bestLinks, bestDeg := -1, -1, -1
		for _, v := range pattern.nodes {
			if placed[v] {
				continue
			}
			links := 0
			for _, w := range pattern.adj[v] {
				if placed[w] {
					links++
				}
			}
			deg := pattern.degree(v)
			if links > bestLinks || (links == bestLinks && deg > bestDeg) {
				best, bestLinks, bestDeg = v, links, deg
			}
		}
		placed[best] = true
		order = append(order, best)
	}
	return order
}

// byDegree returns all nodes ordered by descending degree, then ascending index
func (qg *qubitGraph) byDegree() []int {
	out := append([]int(nil), qg.nodes...)
	sort.SliceStable(out, func(i, j int) bool {
		return qg.degree(out[i]) > qg.degree(out[j])
	})
	return out
}
