package assertions

import (
	"fmt"
	"strings"
)

type Operator int

const (
	OpEquals Operator = iota
	OpNotEquals
	OpOneOf
	OpNotOneOf
	OpHasProperty
	OpInclude
	OpLessThan
	OpLessOrEqual
	OpGreaterThan
	OpGreaterOrEqual
	OpLength
	OpMinLength
	OpType
	OpContains
	OpNotContains
	OpMatches
	OpExists
	OpNotExists
	OpSchema
)

var operatorNames = map[Operator]string{
	OpEquals:         "equals",
	OpNotEquals:      "notEquals",
	OpOneOf:          "oneOf",
	OpNotOneOf:       "notOneOf",
	OpHasProperty:    "hasProperty",
	OpInclude:        "include",
	OpLessThan:       "lessThan",
	OpLessOrEqual:    "lessOrEqual",
	OpGreaterThan:    "greaterThan",
	OpGreaterOrEqual: "greaterOrEqual",
	OpLength:         "length",
	OpMinLength:      "minLength",
	OpType:           "type",
	OpContains:       "contains",
	OpNotContains:    "notContains",
	OpMatches:        "matches",
	OpExists:         "exists",
	OpNotExists:      "notExists",
	OpSchema:         "schema",
}

var operatorAliases = map[string]Operator{
	"==":        OpEquals,
	"eq":        OpEquals,
	"!=":        OpNotEquals,
	"ne":        OpNotEquals,
	"in":        OpOneOf,
	"!in":       OpNotOneOf,
	"<":         OpLessThan,
	"lt":        OpLessThan,
	"<=":        OpLessOrEqual,
	"lte":       OpLessOrEqual,
	">":         OpGreaterThan,
	"gt":        OpGreaterThan,
	">=":        OpGreaterOrEqual,
	"gte":       OpGreaterOrEqual,
	"includes":  OpInclude,
	"!contains": OpNotContains,
	"!exists":   OpNotExists,
}

func (op Operator) String() string {
	if name, ok := operatorNames[op]; ok {
		return name
	}
	return "unknown"
}

// ParseOperator resolves an operator by name (case-insensitive) or alias.
func ParseOperator(name string) (Operator, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for op, n := range operatorNames {
		if strings.ToLower(n) == key {
			return op, nil
		}
	}
	if op, ok := operatorAliases[key]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unknown operator %q", name)
}

// Expectation is a single declarative check.
type Expectation struct {
	Subject  string
	Operator Operator
	Expected any
	// Property names the key checked by OpHasProperty.
	Property string
	// Note documents why the expectation is shaped the way it is, e.g. a
	// status tolerance list for a backend that does not validate input.
	Note string
}

func (e *Expectation) String() string {
	switch e.Operator {
	case OpExists, OpNotExists:
		return fmt.Sprintf("%s %s", e.Subject, e.Operator)
	case OpHasProperty:
		if e.Expected != nil {
			return fmt.Sprintf("%s %s %s=%v", e.Subject, e.Operator, e.Property, e.Expected)
		}
		return fmt.Sprintf("%s %s %s", e.Subject, e.Operator, e.Property)
	default:
		return fmt.Sprintf("%s %s %v", e.Subject, e.Operator, e.Expected)
	}
}

// Validate reports expectations that can never be evaluated.
func (e *Expectation) Validate() error {
	if strings.TrimSpace(e.Subject) == "" {
		return fmt.Errorf("expectation has no subject")
	}
	if _, ok := operatorNames[e.Operator]; !ok {
		return fmt.Errorf("expectation on %s has unknown operator %d", e.Subject, e.Operator)
	}
	switch e.Operator {
	case OpOneOf, OpNotOneOf:
		if _, ok := e.Expected.([]any); !ok {
			return fmt.Errorf("%s on %s needs a list, got %T", e.Operator, e.Subject, e.Expected)
		}
	case OpHasProperty:
		if e.Property == "" {
			return fmt.Errorf("hasProperty on %s needs a property name", e.Subject)
		}
	case OpLength, OpMinLength:
		if _, ok := toInt(e.Expected); !ok {
			return fmt.Errorf("%s on %s needs a number, got %v", e.Operator, e.Subject, e.Expected)
		}
	case OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual:
		if _, ok := toFloat64(e.Expected); !ok {
			return fmt.Errorf("%s on %s needs a number, got %v", e.Operator, e.Subject, e.Expected)
		}
	}
	return nil
}

func (o Operator) isThreshold() bool {
	switch o {
	case OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual:
		return true
	}
	return false
}
