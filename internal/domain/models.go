// Package domain provides core domain models and types.
package domain

import (
	"sort"
	"strings"
)

// DefaultFidelityKey is the fidelity map entry used when a gate has no specific entry
const DefaultFidelityKey = "default"

// MaxQubitCount bounds declared qubit counts on circuits and QPUs
const MaxQubitCount = 1 << 20

// Pair is an unordered pair of qubit indices, stored with the lower index first
type Pair [2]int

// NewPair returns the canonical form of the pair (a, b)
func NewPair(a, b int) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{a, b}
}

// Canonical returns the pair with the lower index first
func (p Pair) Canonical() Pair {
	return NewPair(p[0], p[1])
}

// NormalizeGate returns the canonical spelling of a gate identifier.
// Gate identifiers are case-insensitive ("CX" and "cx" name the same gate).
func NormalizeGate(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// GateSet is a set of normalized gate identifiers
type GateSet map[string]struct{}

// NewGateSet builds a gate set from raw gate names
func NewGateSet(names ...string) GateSet {
	set := make(GateSet, len(names))
	for _, name := range names {
		if n := NormalizeGate(name); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set contains the gate
func (s GateSet) Has(name string) bool {
	_, ok := s[NormalizeGate(name)]
	return ok
}

// Sorted returns the gates in ascending order
func (s GateSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Circuit describes the resource needs of a quantum circuit.
// It is produced by a parser and is read-only once constructed.
// Depth and Shots are optional; zero means unknown and never exceeds a limit.
type Circuit struct {
	QubitCount       int      `json:"qubit_count" yaml:"qubit_count" msgpack:"qubit_count"`
	RequiredGates    []string `json:"required_gates" yaml:"required_gates" msgpack:"required_gates"`
	InteractionPairs []Pair   `json:"interaction_pairs" yaml:"interaction_pairs" msgpack:"interaction_pairs"`
	Depth            int      `json:"depth,omitempty" yaml:"depth,omitempty" msgpack:"depth,omitempty"`
	Shots            int      `json:"shots,omitempty" yaml:"shots,omitempty" msgpack:"shots,omitempty"`
}

// NewCircuit builds a circuit descriptor with deduplicated, sorted gates and
// canonical, deduplicated interaction pairs.
func NewCircuit(qubitCount int, gates []string, pairs []Pair) *Circuit {
	seen := make(map[Pair]struct{}, len(pairs))
	canonical := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		c := p.Canonical()
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		canonical = append(canonical, c)
	}
	sort.Slice(canonical, func(i, j int) bool {
		if canonical[i][0] != canonical[j][0] {
			return canonical[i][0] < canonical[j][0]
		}
		return canonical[i][1] < canonical[j][1]
	})

	return &Circuit{
		QubitCount:       qubitCount,
		RequiredGates:    NewGateSet(gates...).Sorted(),
		InteractionPairs: canonical,
	}
}

// GateSet returns the required gates as a set
func (c *Circuit) GateSet() GateSet {
	return NewGateSet(c.RequiredGates...)
}

// QPU is a snapshot of a processor's capabilities and current state.
// Descriptors are owned by the catalog and must not be mutated while a
// binding call that references them is in flight.
type QPU struct {
	ID          string             `json:"id" yaml:"id" msgpack:"id"`
	Name        string             `json:"name,omitempty" yaml:"name,omitempty" msgpack:"name,omitempty"`
	Provider    string             `json:"provider,omitempty" yaml:"provider,omitempty" msgpack:"provider,omitempty"`
	QubitCount  int                `json:"qubit_count" yaml:"qubit_count" msgpack:"qubit_count"`
	NativeGates []string           `json:"native_gates" yaml:"native_gates" msgpack:"native_gates"`
	Couplers    []Pair             `json:"couplers" yaml:"couplers" msgpack:"couplers"`
	Fidelity    map[string]float64 `json:"fidelity" yaml:"fidelity" msgpack:"fidelity"`
	Workload    float64            `json:"workload" yaml:"workload" msgpack:"workload"`
	CostPerShot float64            `json:"cost_per_shot" yaml:"cost_per_shot" msgpack:"cost_per_shot"`
	Available   bool               `json:"available" yaml:"available" msgpack:"available"`
	MaxDepth    int                `json:"max_depth,omitempty" yaml:"max_depth,omitempty" msgpack:"max_depth,omitempty"` // 0 means unlimited
	MaxShots    int                `json:"max_shots,omitempty" yaml:"max_shots,omitempty" msgpack:"max_shots,omitempty"` // 0 means unlimited
}

// Clone returns a deep copy of the descriptor
func (q *QPU) Clone() *QPU {
	c := *q
	c.NativeGates = append([]string(nil), q.NativeGates...)
	c.Couplers = append([]Pair(nil), q.Couplers...)
	if q.Fidelity != nil {
		c.Fidelity = make(map[string]float64, len(q.Fidelity))
		for k, v := range q.Fidelity {
			c.Fidelity[k] = v
		}
	}
	return &c
}

// GateSet returns the native gates as a set
func (q *QPU) GateSet() GateSet {
	return NewGateSet(q.NativeGates...)
}

// GateFidelity returns the calibrated fidelity for a gate, falling back to
// the default entry. The boolean is false when neither entry exists.
func (q *QPU) GateFidelity(gate string) (float64, bool) {
	if value, ok := q.lookupFidelity(NormalizeGate(gate)); ok {
		return value, true
	}
	return q.lookupFidelity(DefaultFidelityKey)
}

// lookupFidelity finds the entry whose key normalizes to name. Validated
// descriptors have at most one such key.
func (q *QPU) lookupFidelity(name string) (float64, bool) {
	if value, ok := q.Fidelity[name]; ok {
		return value, true
	}
	for key, value := range q.Fidelity {
		if NormalizeGate(key) == name {
			return value, true
		}
	}
	return 0, false
}

// Weights configures the relative importance of the scoring criteria.
// Weights need not sum to one; the engine normalizes them per request.
//
// New criteria are added as a new named field here plus an entry in the
// binding package's criteria table.
type Weights struct {
	Fidelity float64 `json:"fidelity" yaml:"fidelity"`
	Latency  float64 `json:"latency" yaml:"latency"`
	Cost     float64 `json:"cost" yaml:"cost"`
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.Fidelity + w.Latency + w.Cost
}
