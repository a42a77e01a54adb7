package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ConstraintTarget selects what a constraint's property is read from
type ConstraintTarget string

const (
	TargetQPU      ConstraintTarget = "qpu"
	TargetCircuit  ConstraintTarget = "circuit"
	TargetComputed ConstraintTarget = "computed" // derived from the circuit and the QPU together
)

// ConstraintOperator compares a property with a constraint's value
type ConstraintOperator string

const (
	OpEq       ConstraintOperator = "eq"
	OpNe       ConstraintOperator = "ne"
	OpGt       ConstraintOperator = "gt"
	OpGe       ConstraintOperator = "ge"
	OpLt       ConstraintOperator = "lt"
	OpLe       ConstraintOperator = "le"
	OpIn       ConstraintOperator = "in"
	OpNotIn    ConstraintOperator = "not_in"
	OpContains ConstraintOperator = "contains"
	OpSubset   ConstraintOperator = "subset"
	OpSuperset ConstraintOperator = "superset"
)

// Constraint is a caller-supplied hard requirement checked against every QPU
// that passed the built-in checks, e.g. {qpu, provider, in, [ibm, ionq]}.
// Target defaults to qpu and Operator to ge.
type Constraint struct {
	Name     string             `json:"name,omitempty" yaml:"name,omitempty"`
	Target   ConstraintTarget   `json:"target,omitempty" yaml:"target,omitempty"`
	Property string             `json:"property" yaml:"property"`
	Operator ConstraintOperator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    interface{}        `json:"value" yaml:"value"`
}

// WithDefaults fills in the default target and operator
func (c Constraint) WithDefaults() Constraint {
	if c.Target == "" {
		c.Target = TargetQPU
	}
	if c.Operator == "" {
		c.Operator = OpGe
	}
	return c
}

// Label names the constraint in rejections
func (c Constraint) Label() string {
	if c.Name != "" {
		return c.Name
	}
	c = c.WithDefaults()
	return fmt.Sprintf("%s.%s %s %v", c.Target, c.Property, c.Operator, c.Value)
}

// ParseConstraint reads the compact form "[target.]property operator value",
// e.g. "qpu.provider in ibm,ionq" or "computed.fidelity gt 0.9". A value with
// commas is a set; numbers and booleans are typed.
func ParseConstraint(expr string) (Constraint, error) {
	fields := strings.Fields(expr)
	if len(fields) < 3 {
		return Constraint{}, fmt.Errorf("constraint %q: want \"[target.]property operator value\"", expr)
	}

	c := Constraint{
		Property: fields[0],
		Operator: ConstraintOperator(strings.ToLower(fields[1])),
	}
	if head, rest, ok := strings.Cut(fields[0], "."); ok {
		switch target := ConstraintTarget(strings.ToLower(head)); target {
		case TargetQPU, TargetCircuit, TargetComputed:
			c.Target = target
			c.Property = rest
		}
	}

	raw := strings.Join(fields[2:], " ")
	if strings.Contains(raw, ",") {
		var set []interface{}
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				set = append(set, parseScalar(item))
			}
		}
		c.Value = set
	} else {
		c.Value = parseScalar(raw)
	}
	return c.WithDefaults(), nil
}

func parseScalar(s string) interface{} {
	if s == "true" || s == "false" {
		return s == "true"
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
