package binding

import (
	"sort"

	"github.com/aristath/qpubinder/internal/domain"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// qubitGraph is an undirected graph over the qubits that appear in at least
// one pair, with sorted neighbor lists cached for deterministic iteration.
// Qubits without pairs are only counted, so memory follows the pair list
// and not the declared size.
type qubitGraph struct {
	g        *simple.UndirectedGraph
	size     int           // declared qubit count, nodes are in [0, size)
	nodes    []int         // ascending
	adj      map[int][]int // ascending neighbors
	edges    int
	isolated int // qubits in [0, size) with no edges
}

func newQubitGraph(size int, pairs []domain.Pair) *qubitGraph {
	qg := &qubitGraph{
		g:    simple.NewUndirectedGraph(),
		size: size,
		adj:  make(map[int][]int),
	}

	for _, p := range pairs {
		a, b := p[0], p[1]
		if a == b || a < 0 || b < 0 || a >= size || b >= size {
			continue
		}
		if qg.g.HasEdgeBetween(int64(a), int64(b)) {
			continue
		}
		qg.g.SetEdge(qg.g.NewEdge(simple.Node(a), simple.Node(b)))
		qg.adj[a] = append(qg.adj[a], b)
		qg.adj[b] = append(qg.adj[b], a)
		qg.edges++
	}

	qg.nodes = make([]int, 0, len(qg.adj))
	for v, neighbors := range qg.adj {
		sort.Ints(neighbors)
		qg.nodes = append(qg.nodes, v)
	}
	sort.Ints(qg.nodes)
	qg.isolated = size - len(qg.nodes)

	return qg
}

func (qg *qubitGraph) degree(v int) int {
	return len(qg.adj[v])
}

func (qg *qubitGraph) hasEdge(a, b int) bool {
	return qg.g.HasEdgeBetween(int64(a), int64(b))
}

// degreeSequence returns the degrees of connected nodes in descending order.
// Isolated qubits are left out; they have degree zero.
func (qg *qubitGraph) degreeSequence() []int {
	seq := make([]int, 0, len(qg.nodes))
	for _, v := range qg.nodes {
		seq = append(seq, qg.degree(v))
	}
	sort.Sort(sort.Reverse(sort.IntSlice(seq)))
	return seq
}

// largestComponent returns the node count of the largest connected component,
// counting an isolated qubit as a component of one.
func (qg *qubitGraph) largestComponent() int {
	largest := 0
	if qg.isolated > 0 {
		largest = 1
	}
	for _, comp := range topo.ConnectedComponents(qg.g) {
		if len(comp) > largest {
			largest = len(comp)
		}
	}
	return largest
}
