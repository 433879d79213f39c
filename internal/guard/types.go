// Package guard implements a dispatch filter that rejects requests matched
// by configurable condition rules.
package guard

import "fmt"

// Rule rejects every request on a matching topic whose values satisfy its conditions
type Rule struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Topic       string      `yaml:"topic"` // MQTT topic filter; empty matches every topic
	Disabled    bool        `yaml:"disabled"`
	Priority    int         `yaml:"priority"` // higher runs first
	Reject      string      `yaml:"reject"`   // forbidden (default), unauthorized, invalid, locked
	Message     string      `yaml:"message"`
	Conditions  *Conditions `yaml:"conditions"`
}

// Conditions is a group of conditions joined by a logical operator
type Conditions struct {
	Operator string       `yaml:"operator"` // "and" or "or"
	Items    []Condition  `yaml:"items"`
	Groups   []Conditions `yaml:"groups,omitempty"`
}

// Condition compares one request value
type Condition struct {
	Field    string      `yaml:"field"`
	Operator string      `yaml:"operator"`
	Value    interface{} `yaml:"value"`
}

// RuleSet is the layout of a rule file
type RuleSet struct {
	Name  string `yaml:"name"`
	Rules []Rule `yaml:"rules"`
}

// ValidationError names the offending field of an invalid rule
type ValidationError struct {
	Rule    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule %q: %s: %s", e.Rule, e.Field, e.Message)
}

const (
	OperatorAnd = "and"
	OperatorOr  = "or"

	OperatorEquals             = "eq"
	OperatorNotEquals          = "neq"
	OperatorGreaterThan        = "gt"
	OperatorLessThan           = "lt"
	OperatorGreaterThanOrEqual = "gte"
	OperatorLessThanOrEqual    = "lte"
	OperatorExists             = "exists"
	OperatorContains           = "contains"
	OperatorMatches            = "matches"
)

const (
	RejectForbidden    = "forbidden"
	RejectUnauthorized = "unauthorized"
	RejectInvalid      = "invalid"
	RejectLocked       = "locked"
)

var validOperators = map[string]bool{
	OperatorEquals:             true,
	OperatorNotEquals:          true,
	OperatorGreaterThan:        true,
	OperatorLessThan:           true,
	OperatorGreaterThanOrEqual: true,
	OperatorLessThanOrEqual:    true,
	OperatorExists:             true,
	OperatorContains:           true,
	OperatorMatches:            true,
}
