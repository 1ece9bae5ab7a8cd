package cases

import (
	"fmt"
	"strings"
)

type Operator int

const (
	OpEquals Operator = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
	OpContains
	OpNotContains
	OpIn
	OpNotIn
	OpIsNull
	OpNotNull
	OpRegex
	OpStrEquals
	OpLenEquals
	OpLenGreaterThan
	OpLenGreaterOrEqual
	OpLenLessThan
	OpLenLessOrEqual
	OpStartsWith
	OpEndsWith
	OpContainedBy
	OpType
	OpSchema
)

func (op Operator) String() string {
	switch op {
	case OpEquals:
		return "=="
	case OpNotEquals:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessOrEqual:
		return "<="
	case OpContains:
		return "contains"
	case OpNotContains:
		return "not_contains"
	case OpIn:
		return "in"
	case OpNotIn:
		return "not_in"
	case OpIsNull:
		return "is_null"
	case OpNotNull:
		return "not_null"
	case OpRegex:
		return "regex"
	case OpStrEquals:
		return "str_eq"
	case OpLenEquals:
		return "len_eq"
	case OpLenGreaterThan:
		return "len_gt"
	case OpLenGreaterOrEqual:
		return "len_ge"
	case OpLenLessThan:
		return "len_lt"
	case OpLenLessOrEqual:
		return "len_le"
	case OpStartsWith:
		return "startswith"
	case OpEndsWith:
		return "endswith"
	case OpContainedBy:
		return "contained_by"
	case OpType:
		return "type"
	case OpSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// MarshalText lets operators appear by name in JSON results.
func (op Operator) MarshalText() ([]byte, error) {
	return []byte(op.String()), nil
}

var operatorAliases = map[string]Operator{
	"eq":           OpEquals,
	"equals":       OpEquals,
	"=":            OpEquals,
	"ne":           OpNotEquals,
	"not_eq":       OpNotEquals,
	"gt":           OpGreaterThan,
	"ge":           OpGreaterOrEqual,
	"gte":          OpGreaterOrEqual,
	"lt":           OpLessThan,
	"le":           OpLessOrEqual,
	"lte":          OpLessOrEqual,
	"not_in":       OpNotIn,
	"notin":        OpNotIn,
	"null":         OpIsNull,
	"notnull":      OpNotNull,
	"is_not_null":  OpNotNull,
	"match":        OpRegex,
	"matches":      OpRegex,
	"starts_with":  OpStartsWith,
	"ends_with":    OpEndsWith,
	"length":       OpLenEquals,
	"contained":    OpContainedBy,
	"notcontains":  OpNotContains,
}

// ParseOperator maps a data-file spelling onto the closed operator set.
func ParseOperator(s string) (Operator, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for op := OpEquals; op <= OpSchema; op++ {
		if op.String() == key {
			return op, nil
		}
	}
	if op, ok := operatorAliases[key]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unknown assertion operator %q", s)
}

// Unary operators ignore the expected value.
func (op Operator) Unary() bool {
	return op == OpIsNull || op == OpNotNull
}

// Operators lists every operator in declaration order.
func Operators() []Operator {
	ops := make([]Operator, 0, int(OpSchema)+1)
	for op := OpEquals; op <= OpSchema; op++ {
		ops = append(ops, op)
	}
	return ops
}
