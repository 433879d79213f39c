package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// fieldPattern accepts dotted value names such as "properties.tenant"
var fieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_\-]*(\.[a-zA-Z0-9_\-]+)*$`)

func validateRule(rule *Rule) error {
	if rule.Name == "" {
		return &ValidationError{Rule: rule.Name, Field: "name", Message: "name cannot be empty"}
	}

	if rule.Topic != "" {
		if err := validateTopicFilter(rule.Topic); err != nil {
			return &ValidationError{Rule: rule.Name, Field: "topic", Message: err.Error()}
		}
	}

	switch rule.Reject {
	case "", RejectForbidden, RejectUnauthorized, RejectInvalid, RejectLocked:
	default:
		return &ValidationError{Rule: rule.Name, Field: "reject", Message: fmt.Sprintf("unknown rejection %q", rule.Reject)}
	}

	return validateConditions(rule.Name, "conditions", rule.Conditions)
}

// validateTopicFilter checks MQTT wildcard placement
func validateTopicFilter(topic string) error {
	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		if segment == "" && i != 0 && i != len(segments)-1 {
			return fmt.Errorf("empty segment not allowed in middle of topic")
		}
		if strings.Contains(segment, "#") {
			if segment != "#" {
				return fmt.Errorf("# wildcard must occupy entire segment")
			}
			if i != len(segments)-1 {
				return fmt.Errorf("# wildcard must be the last segment")
			}
		}
		if strings.Contains(segment, "+") && segment != "+" {
			return fmt.Errorf("+ wildcard must occupy entire segment")
		}
	}
	return nil
}

func validateConditions(rule, path string, conditions *Conditions) error {
	if conditions == nil {
		return nil
	}

	switch conditions.Operator {
	case OperatorAnd, OperatorOr:
	default:
		return &ValidationError{Rule: rule, Field: path + ".operator", Message: fmt.Sprintf("invalid operator: %s", conditions.Operator)}
	}

	for i := range conditions.Items {
		if err := validateCondition(&conditions.Items[i]); err != nil {
			return &ValidationError{Rule: rule, Field: fmt.Sprintf("%s.items[%d]", path, i), Message: err.Error()}
		}
	}

	for i := range conditions.Groups {
		if err := validateConditions(rule, fmt.Sprintf("%s.groups[%d]", path, i), &conditions.Groups[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateCondition(condition *Condition) error {
	if condition.Field == "" {
		return fmt.Errorf("field cannot be empty")
	}
	if !fieldPattern.MatchString(condition.Field) {
		return fmt.Errorf("invalid field name: %s", condition.Field)
	}
	if !validOperators[condition.Operator] {
		return fmt.Errorf("invalid operator: %s", condition.Operator)
	}

	if condition.Operator == OperatorMatches {
		pattern, ok := condition.Value.(string)
		if !ok {
			return fmt.Errorf("regex pattern must be a string")
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid regex pattern: %s", err)
		}
	}

	return nil
}
