package metadata

import (
	"fmt"
	"strings"
)

// Op is the closed set of predicate leaf/internal operators from spec.md
// §4.7's grammar.
type Op string

const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpIn         Op = "in"
	OpNotIn      Op = "notIn"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpContains   Op = "contains"
	OpStartsWith Op = "startsWith"
	OpEndsWith   Op = "endsWith"
	OpAnd        Op = "and"
	OpOr         Op = "or"
	OpNot        Op = "not"
)

// Predicate is a node in the metadata filter tree. Leaves carry Field and
// Value; internals (and/or/not) carry Children.
type Predicate struct {
	Op       Op
	Field    string
	Value    any
	Children []Predicate
}

// Eq builds an equality leaf predicate.
func Eq(field string, value any) Predicate { return Predicate{Op: OpEq, Field: field, Value: value} }

// And combines predicates with logical AND.
func And(children ...Predicate) Predicate { return Predicate{Op: OpAnd, Children: children} }

// Or combines predicates with logical OR.
func Or(children ...Predicate) Predicate { return Predicate{Op: OpOr, Children: children} }

// Not negates a single predicate.
func Not(child Predicate) Predicate { return Predicate{Op: OpNot, Children: []Predicate{child}} }

// Matches evaluates the predicate tree against a single entity's metadata
// record (field -> scalar/array value), recursively for and/or/not nodes.
func (p Predicate) Matches(record map[string]any) (bool, error) {
	switch p.Op {
	case OpAnd:
		for _, c := range p.Children {
			ok, err := c.Matches(record)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case OpOr:
		for _, c := range p.Children {
			ok, err := c.Matches(record)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		if len(p.Children) != 1 {
			return false, fmt.Errorf("metadata: not requires exactly one child")
		}
		ok, err := p.Children[0].Matches(record)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return evalLeaf(p, record[p.Field])
	}
}

func evalLeaf(p Predicate, actual any) (bool, error) {
	switch p.Op {
	case OpEq:
		return compareEqual(actual, p.Value), nil
	case OpNe:
		return !compareEqual(actual, p.Value), nil
	case OpIn:
		return inSet(actual, p.Value), nil
	case OpNotIn:
		return !inSet(actual, p.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		return compareOrdered(p.Op, actual, p.Value)
	case OpContains:
		return stringOp(actual, p.Value, strings.Contains)
	case OpStartsWith:
		return stringOp(actual, p.Value, strings.HasPrefix)
	case OpEndsWith:
		return stringOp(actual, p.Value, strings.HasSuffix)
	default:
		return false, fmt.Errorf("metadata: unknown operator %q", p.Op)
	}
}

func compareEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func inSet(actual, set any) bool {
	vals, ok := set.([]any)
	if !ok {
		return false
	}
	for _, v := range vals {
		if compareEqual(actual, v) {
			return true
		}
	}
	return false
}

func compareOrdered(op Op, a, b any) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		as, aIsStr := a.(string)
		bs, bIsStr := b.(string)
		if !aIsStr || !bIsStr {
			return false, fmt.Errorf("metadata: %s requires comparable operands", op)
		}
		switch op {
		case OpGt:
			return as > bs, nil
		case OpGte:
			return as >= bs, nil
		case OpLt:
			return as < bs, nil
		case OpLte:
			return as <= bs, nil
		}
	}
	switch op {
	case OpGt:
		return af > bf, nil
	case OpGte:
		return af >= bf, nil
	case OpLt:
		return af < bf, nil
	case OpLte:
		return af <= bf, nil
	}
	return false, fmt.Errorf("metadata: unreachable operator %s", op)
}

func stringOp(actual, needle any, fn func(s, substr string) bool) (bool, error) {
	as, ok := actual.(string)
	if !ok {
		return false, nil
	}
	ns, ok := needle.(string)
	if !ok {
		return false, fmt.Errorf("metadata: string operator requires a string operand")
	}
	return fn(as, ns), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
