package guard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// evaluator holds the compiled patterns of every "matches" condition
type evaluator struct {
	patterns map[string]*regexp.Regexp
}

func newEvaluator() *evaluator {
	return &evaluator{patterns: make(map[string]*regexp.Regexp)}
}

// compile precompiles the patterns of conditions
func (e *evaluator) compile(conditions *Conditions) error {
	if conditions == nil {
		return nil
	}
	for _, item := range conditions.Items {
		if item.Operator != OperatorMatches {
			continue
		}
		pattern, _ := item.Value.(string)
		if _, ok := e.patterns[pattern]; ok {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return err
		}
		e.patterns[pattern] = re
	}
	for i := range conditions.Groups {
		if err := e.compile(&conditions.Groups[i]); err != nil {
			return err
		}
	}
	return nil
}

// matches reports whether values satisfy conditions. No conditions always match.
func (e *evaluator) matches(conditions *Conditions, values map[string]interface{}) bool {
	if conditions == nil || (len(conditions.Items) == 0 && len(conditions.Groups) == 0) {
		return true
	}

	results := make([]bool, 0, len(conditions.Items)+len(conditions.Groups))
	for i := range conditions.Items {
		results = append(results, e.condition(&conditions.Items[i], values))
	}
	for i := range conditions.Groups {
		results = append(results, e.matches(&conditions.Groups[i], values))
	}

	switch conditions.Operator {
	case OperatorAnd:
		for _, result := range results {
			if !result {
				return false
			}
		}
		return true
	case OperatorOr:
		for _, result := range results {
			if result {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (e *evaluator) condition(condition *Condition, values map[string]interface{}) bool {
	value, exists := values[condition.Field]
	if !exists {
		// a missing field only satisfies "not equals"
		return condition.Operator == OperatorNotEquals
	}

	switch condition.Operator {
	case OperatorEquals:
		return compareValues(value, condition.Value) == 0
	case OperatorNotEquals:
		return compareValues(value, condition.Value) != 0
	case OperatorGreaterThan:
		return compareValues(value, condition.Value) > 0
	case OperatorLessThan:
		return compareValues(value, condition.Value) < 0
	case OperatorGreaterThanOrEqual:
		return compareValues(value, condition.Value) >= 0
	case OperatorLessThanOrEqual:
		return compareValues(value, condition.Value) <= 0
	case OperatorExists:
		return true
	case OperatorContains:
		return strings.Contains(toString(value), toString(condition.Value))
	case OperatorMatches:
		pattern, _ := condition.Value.(string)
		re, ok := e.patterns[pattern]
		return ok && re.MatchString(toString(value))
	default:
		return false
	}
}

// compareValues orders two loosely typed values, falling back to their text form
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if fa, ok := toFloat64(a); ok {
		if fb, ok := toFloat64(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}

	if ba, ok := a.(bool); ok {
		if bb, ok := toBool(b); ok {
			switch {
			case ba == bb:
				return 0
			case ba:
				return 1
			default:
				return -1
			}
		}
	}

	return strings.Compare(toString(a), toString(b))
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		if b, err := strconv.ParseBool(val); err == nil {
			return b, true
		}
	case int:
		return val != 0, true
	case float64:
		return val != 0, true
	}
	return false, false
}
