package binding

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aristath/qpubinder/internal/domain"
	"go.uber.org/multierr"
)

type valueKind int

const (
	kindNumber valueKind = iota
	kindString
	kindBool
	kindSet
)

func (k valueKind) String() string {
	switch k {
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindBool:
		return "bool"
	}
	return "set"
}

// operand is a typed constraint value or property reading
type operand struct {
	kind valueKind
	num  float64
	str  string
	flag bool
	set  []string
}

// key is the form scalars take inside a set
func (o operand) key() string {
	if o.kind == kindNumber {
		return strconv.FormatFloat(o.num, 'g', -1, 64)
	}
	return o.str
}

func numberOperand(v float64) operand { return operand{kind: kindNumber, num: v} }
func stringOperand(v string) operand { return operand{kind: kindString, str: v} }
func setOperand(v []string) operand { return operand{kind: kindSet, set: v} }
func boolOperand(v bool) operand { return operand{kind: kindBool, flag: v} }

// limitOperand reads a QPU limit, where zero means unlimited
func limitOperand(v int) operand {
	if v == 0 {
		return numberOperand(math.Inf(1))
	}
	return numberOperand(float64(v))
}

type reader func(c *domain.Circuit, q *domain.QPU) (operand, error)

// property is a named value a constraint can test
type property struct {
	kind  valueKind
	gates bool // string members are gate identifiers
	read  reader
}

var properties = map[domain.ConstraintTarget]map[string]property{
	domain.TargetQPU: {
		"id":            {kind: kindString, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return stringOperand(q.ID), nil }},
		"name":          {kind: kindString, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return stringOperand(q.Name), nil }},
		"provider":      {kind: kindString, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return stringOperand(q.Provider), nil }},
		"qubit_count":   {kind: kindNumber, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return numberOperand(float64(q.QubitCount)), nil }},
		"coupler_count": {kind: kindNumber, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return numberOperand(float64(len(q.Couplers))), nil }},
		"native_gates":  {kind: kindSet, gates: true, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return setOperand(q.GateSet().Sorted()), nil }},
		"workload":      {kind: kindNumber, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return numberOperand(q.Workload), nil }},
		"cost_per_shot": {kind: kindNumber, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return numberOperand(q.CostPerShot), nil }},
		"available":     {kind: kindBool, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return boolOperand(q.Available), nil }},
		"max_depth":     {kind: kindNumber, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return limitOperand(q.MaxDepth), nil }},
		"max_shots":     {kind: kindNumber, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) { return limitOperand(q.MaxShots), nil }},
	},
	domain.TargetCircuit: {
		"qubit_count":       {kind: kindNumber, read: func(c *domain.Circuit, _ *domain.QPU) (operand, error) { return numberOperand(float64(c.QubitCount)), nil }},
		"depth":             {kind: kindNumber, read: readDepth},
		"shots":             {kind: kindNumber, read: readShots},
		"required_gates":    {kind: kindSet, gates: true, read: func(c *domain.Circuit, _ *domain.QPU) (operand, error) { return setOperand(c.GateSet().Sorted()), nil }},
		"interaction_count": {kind: kindNumber, read: func(c *domain.Circuit, _ *domain.QPU) (operand, error) { return numberOperand(float64(len(c.InteractionPairs))), nil }},
	},
	domain.TargetComputed: {
		"fidelity":      {kind: kindNumber, read: readAggregateFidelity},
		"cost":          {kind: kindNumber, read: readTotalCost},
		"circuit_depth": {kind: kindNumber, read: readDepth},
		// absolute scales, unlike the per-request min-max used for scoring
		"normalized_cost": {kind: kindNumber, read: func(c *domain.Circuit, q *domain.QPU) (operand, error) {
			cost, err := readTotalCost(c, q)
			if err != nil {
				return operand{}, err
			}
			return numberOperand(1 / (1 + math.Exp(-0.01*(cost.num-100)))), nil
		}},
		"normalized_workload": {kind: kindNumber, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) {
			return numberOperand(math.Min(1, q.Workload/100)), nil
		}},
	},
}

func readDepth(c *domain.Circuit, _ *domain.QPU) (operand, error) {
	if c.Depth <= 0 {
		return operand{}, fmt.Errorf("circuit depth is unknown")
	}
	return numberOperand(float64(c.Depth)), nil
}

func readShots(c *domain.Circuit, _ *domain.QPU) (operand, error) {
	if c.Shots <= 0 {
		return operand{}, fmt.Errorf("circuit shots are unknown")
	}
	return numberOperand(float64(c.Shots)), nil
}

func readAggregateFidelity(c *domain.Circuit, q *domain.QPU) (operand, error) {
	f, missing := AggregateFidelity(q, c.RequiredGates)
	if len(missing) > 0 {
		return operand{}, fmt.Errorf("no fidelity data for %v", missing)
	}
	return numberOperand(f), nil
}

func readTotalCost(c *domain.Circuit, q *domain.QPU) (operand, error) {
	shots, err := readShots(c, q)
	if err != nil {
		return operand{}, err
	}
	return numberOperand(q.CostPerShot * shots.num), nil
}

// lookupProperty resolves a property name, including qpu "fidelity.<gate>"
func lookupProperty(target domain.ConstraintTarget, name string) (property, error) {
	table, ok := properties[target]
	if !ok {
		return property{}, fmt.Errorf("unknown target %q", target)
	}
	if p, ok := table[name]; ok {
		return p, nil
	}
	if gate, ok := strings.CutPrefix(name, "fidelity."); ok && target == domain.TargetQPU && domain.NormalizeGate(gate) != "" {
		gate = domain.NormalizeGate(gate)
		return property{kind: kindNumber, read: func(_ *domain.Circuit, q *domain.QPU) (operand, error) {
			f, ok := q.GateFidelity(gate)
			if !ok {
				return operand{}, fmt.Errorf("no fidelity data for %s", gate)
			}
			return numberOperand(f), nil
		}}, nil
	}
	return property{}, fmt.Errorf("unknown %s property %q", target, name)
}

// Predicate is a validated constraint, ready to be tested against QPUs
type Predicate struct {
	label string
	prop  property
	op    domain.ConstraintOperator
	value operand
}

// Label names the predicate in rejections
func (p Predicate) Label() string {
	return p.label
}

// CompilePredicates validates constraints and resolves their properties.
// Every invalid constraint is reported, wrapped in ErrInvalidConfiguration.
func CompilePredicates(constraints []domain.Constraint) ([]Predicate, error) {
	var errs error
	out := make([]Predicate, 0, len(constraints))
	for i, c := range constraints {
		p, err := compilePredicate(c)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("constraint %d (%s): %v", i, c.Label(), err))
			continue
		}
		out = append(out, p)
	}
	if errs != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, errs)
	}
	return out, nil
}

func compilePredicate(c domain.Constraint) (Predicate, error) {
	label := c.Label()
	c = c.WithDefaults()

	prop, err := lookupProperty(c.Target, c.Property)
	if err != nil {
		return Predicate{}, err
	}
	value, err := operandOf(c.Value)
	if err != nil {
		return Predicate{}, err
	}

	switch c.Operator {
	case domain.OpEq, domain.OpNe:
		if prop.kind == kindSet {
			value = asSet(value)
		}
		if value.kind != prop.kind {
			return Predicate{}, fmt.Errorf("%s property compared with a %s value", prop.kind, value.kind)
		}
	case domain.OpGt, domain.OpGe, domain.OpLt, domain.OpLe:
		if prop.kind != kindNumber || value.kind != kindNumber {
			return Predicate{}, fmt.Errorf("operator %s needs a number property and value", c.Operator)
		}
	case domain.OpIn, domain.OpNotIn:
		if prop.kind != kindNumber && prop.kind != kindString {
			return Predicate{}, fmt.Errorf("operator %s needs a number or string property", c.Operator)
		}
		value = asSet(value)
		if prop.kind == kindNumber {
			if value, err = numericSet(value); err != nil {
				return Predicate{}, err
			}
		}
	case domain.OpContains, domain.OpSubset, domain.OpSuperset:
		if prop.kind != kindSet {
			return Predicate{}, fmt.Errorf("operator %s needs a set property", c.Operator)
		}
		value = asSet(value)
	default:
		return Predicate{}, fmt.Errorf("unknown operator %q", c.Operator)
	}

	if prop.gates {
		value = normalizeGates(value)
	}
	return Predicate{label: label, prop: prop, op: c.Operator, value: value}, nil
}

// Holds tests the predicate. A property that cannot be read is an error,
// which callers treat as a violation.
func (p Predicate) Holds(circuit *domain.Circuit, qpu *domain.QPU) (bool, error) {
	got, err := p.prop.read(circuit, qpu)
	if err != nil {
		return false, err
	}

	switch p.op {
	case domain.OpEq:
		return equalOperands(got, p.value), nil
	case domain.OpNe:
		return !equalOperands(got, p.value), nil
	case domain.OpGt:
		return got.num > p.value.num, nil
	case domain.OpGe:
		return got.num >= p.value.num, nil
	case domain.OpLt:
		return got.num < p.value.num, nil
	case domain.OpLe:
		return got.num <= p.value.num, nil
	case domain.OpIn:
		return hasMember(p.value.set, got.key()), nil
	case domain.OpNotIn:
		return !hasMember(p.value.set, got.key()), nil
	case domain.OpContains, domain.OpSuperset:
		return isSubset(p.value.set, got.set), nil
	case domain.OpSubset:
		return isSubset(got.set, p.value.set), nil
	}
	return false, fmt.Errorf("unknown operator %q", p.op)
}

// operandOf types a decoded JSON or YAML value
func operandOf(v interface{}) (operand, error) {
	switch x := v.(type) {
	case nil:
		return operand{}, fmt.Errorf("value is required")
	case []string:
		return setOperand(append([]string(nil), x...)), nil
	case []interface{}:
		set := make([]string, 0, len(x))
		for _, item := range x {
			member, err := operandOf(item)
			if err != nil {
				return operand{}, err
			}
			if member.kind == kindSet || member.kind == kindBool {
				return operand{}, fmt.Errorf("set members must be numbers or strings")
			}
			set = append(set, member.key())
		}
		return setOperand(set), nil
	case string:
		return stringOperand(x), nil
	case bool:
		return boolOperand(x), nil
	case float64:
		return numberOperand(x), nil
	case float32:
		return numberOperand(float64(x)), nil
	case int:
		return numberOperand(float64(x)), nil
	case int64:
		return numberOperand(float64(x)), nil
	case uint64:
		return numberOperand(float64(x)), nil
	}
	return operand{}, fmt.Errorf("unsupported value type %T", v)
}

// asSet wraps a scalar as a set of one
func asSet(o operand) operand {
	if o.kind == kindSet {
		return o
	}
	return setOperand([]string{o.key()})
}

func numericSet(o operand) (operand, error) {
	out := make([]string, len(o.set))
	for i, member := range o.set {
		f, err := strconv.ParseFloat(member, 64)
		if err != nil {
			return operand{}, fmt.Errorf("set member %q is not a number", member)
		}
		out[i] = numberOperand(f).key()
	}
	return setOperand(out), nil
}

func normalizeGates(o operand) operand {
	switch o.kind {
	case kindString:
		o.str = domain.NormalizeGate(o.str)
	case kindSet:
		o.set = domain.NewGateSet(o.set...).Sorted()
	}
	return o
}

func equalOperands(a, b operand) bool {
	switch a.kind {
	case kindNumber:
		return a.num == b.num
	case kindString:
		return a.str == b.str
	case kindBool:
		return a.flag == b.flag
	}
	return isSubset(a.set, b.set) && isSubset(b.set, a.set)
}

func hasMember(set []string, s string) bool {
	for _, member := range set {
		if member == s {
			return true
		}
	}
	return false
}

// isSubset reports whether every member of sub is in super
func isSubset(sub, super []string) bool {
	for _, member := range sub {
		if !hasMember(super, member) {
			return false
		}
	}
	return true
}
