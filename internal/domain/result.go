package domain

import (
	"fmt"
	"strings"
)

// RejectionCode identifies why a QPU cannot run a circuit
type RejectionCode string

const (
	RejectUnavailable               RejectionCode = "Unavailable"
	RejectInvalidDescriptor         RejectionCode = "InvalidDescriptor"
	RejectInsufficientQubits        RejectionCode = "InsufficientQubits"
	RejectUnsupportedGates          RejectionCode = "UnsupportedGates"
	RejectConnectivityUnsatisfiable RejectionCode = "ConnectivityUnsatisfiable"
	RejectExceedsLimits             RejectionCode = "ExceedsLimits"
	RejectConstraintViolated        RejectionCode = "ConstraintViolated"
	RejectMissingFidelityData       RejectionCode = "MissingFidelityData"
)

// Rejection records the single reason a QPU was filtered out
type Rejection struct {
	Code    RejectionCode `json:"code"`
	Missing []string      `json:"missing,omitempty"` // gates, or the names of violated constraints
	Detail  string        `json:"detail,omitempty"`
}

func (r Rejection) String() string {
	if len(r.Missing) > 0 {
		return fmt.Sprintf("%s(%s)", r.Code, strings.Join(r.Missing, ","))
	}
	return string(r.Code)
}

// CriterionScores holds the normalized [0,1] value of each criterion
type CriterionScores struct {
	Fidelity float64 `json:"fidelity"`
	Latency  float64 `json:"latency"`
	Cost     float64 `json:"cost"`
}

// RankedQPU is a feasible candidate with its score
type RankedQPU struct {
	ID          string          `json:"id"`
	Score       float64         `json:"score"`
	Fidelity    float64         `json:"fidelity"` // aggregate over the circuit's gates
	Workload    float64         `json:"workload"`
	CostPerShot float64         `json:"cost_per_shot"`
	Components  CriterionScores `json:"components"`
}

// BindingResult is the outcome of a single binding request
type BindingResult struct {
	Selected   string               `json:"selected,omitempty"` // empty when no QPU is feasible
	Ranked     []RankedQPU          `json:"ranked"`
	Rejections map[string]Rejection `json:"rejections"`
}

// HasSelection reports whether a QPU was selected
func (r *BindingResult) HasSelection() bool {
	return r.Selected != ""
}

// Top returns the first k ranked candidates, or all of them when k <= 0
func (r *BindingResult) Top(k int) []RankedQPU {
	if k <= 0 || k >= len(r.Ranked) {
		return r.Ranked
	}
	return r.Ranked[:k]
}
