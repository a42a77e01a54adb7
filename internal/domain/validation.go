package domain

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// Validate checks the circuit descriptor invariants and returns every violation
func (c *Circuit) Validate() error {
	if c == nil {
		return fmt.Errorf("circuit descriptor is nil")
	}

	var errs error
	if c.QubitCount <= 0 || c.QubitCount > MaxQubitCount {
		errs = multierr.Append(errs, fmt.Errorf("qubit_count must be in [1,%d], got %d", MaxQubitCount, c.QubitCount))
	}
	if c.Depth < 0 {
		errs = multierr.Append(errs, fmt.Errorf("depth must not be negative, got %d", c.Depth))
	}
	if c.Shots < 0 {
		errs = multierr.Append(errs, fmt.Errorf("shots must not be negative, got %d", c.Shots))
	}
	for _, gate := range c.RequiredGates {
		if NormalizeGate(gate) == "" {
			errs = multierr.Append(errs, fmt.Errorf("required gate identifier must not be empty"))
			break
		}
	}
	for _, p := range c.InteractionPairs {
		if p[0] < 0 || p[1] < 0 || p[0] >= c.QubitCount || p[1] >= c.QubitCount {
			errs = multierr.Append(errs, fmt.Errorf("interaction pair (%d,%d) out of range [0,%d)", p[0], p[1], c.QubitCount))
			continue
		}
		if p[0] == p[1] {
			errs = multierr.Append(errs, fmt.Errorf("interaction pair (%d,%d) couples a qubit with itself", p[0], p[1]))
		}
	}
	return errs
}

// Validate checks the QPU descriptor invariants. It does not look at
// availability; an unavailable QPU may still be well formed.
func (q *QPU) Validate() error {
	var errs error
	if q.QubitCount <= 0 || q.QubitCount > MaxQubitCount {
		errs = multierr.Append(errs, fmt.Errorf("qubit_count must be in [1,%d], got %d", MaxQubitCount, q.QubitCount))
	}
	if q.MaxDepth < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_depth must not be negative, got %d", q.MaxDepth))
	}
	if q.MaxShots < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_shots must not be negative, got %d", q.MaxShots))
	}
	for _, p := range q.Couplers {
		if p[0] < 0 || p[1] < 0 || p[0] >= q.QubitCount || p[1] >= q.QubitCount {
			errs = multierr.Append(errs, fmt.Errorf("coupler (%d,%d) out of range [0,%d)", p[0], p[1], q.QubitCount))
			continue
		}
		if p[0] == p[1] {
			errs = multierr.Append(errs, fmt.Errorf("coupler (%d,%d) is a self-loop", p[0], p[1]))
		}
	}
	if !isFiniteNonNegative(q.Workload) {
		errs = multierr.Append(errs, fmt.Errorf("workload must be a non-negative number, got %v", q.Workload))
	}
	if !isFiniteNonNegative(q.CostPerShot) {
		errs = multierr.Append(errs, fmt.Errorf("cost_per_shot must be a non-negative number, got %v", q.CostPerShot))
	}

	keys := make(map[string]string, len(q.Fidelity))
	for key, value := range q.Fidelity {
		norm := NormalizeGate(key)
		if other, dup := keys[norm]; dup {
			errs = multierr.Append(errs, fmt.Errorf("fidelity entries %q and %q name the same gate", other, key))
		}
		keys[norm] = key
		if math.IsNaN(value) || value <= 0 || value > 1 {
			errs = multierr.Append(errs, fmt.Errorf("fidelity for %q must be in (0,1], got %v", key, value))
		}
	}
	return errs
}

// Validate checks that weights are finite, non-negative and not all zero
func (w Weights) Validate() error {
	var errs error
	named := []struct {
		name  string
		value float64
	}{
		{"fidelity", w.Fidelity},
		{"latency", w.Latency},
		{"cost", w.Cost},
	}
	for _, n := range named {
		if !isFiniteNonNegative(n.value) {
			errs = multierr.Append(errs, fmt.Errorf("weight %s must be a non-negative number, got %v", n.name, n.value))
		}
	}
	if errs == nil && w.Sum() <= 0 {
		errs = fmt.Errorf("at least one weight must be positive")
	}
	return errs
}

func isFiniteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
