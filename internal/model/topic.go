package model

import (
	"fmt"
	"strings"
	"unicode"
)

// Separator terminates every base topic
const Separator = "/"

// BaseTopicOf returns the prefix of a full topic up to and including its last separator
func BaseTopicOf(fullTopic string) (string, error) {
	idx := strings.LastIndex(fullTopic, Separator)
	if idx <= 0 {
		return "", fmt.Errorf("topic %q has no base topic", fullTopic)
	}
	return fullTopic[:idx+1], nil
}

// FullTopic joins a base topic and an operation name
func FullTopic(baseTopic, operation string) string {
	return baseTopic + NormalizeOperation(operation)
}

// NormalizeOperation converts an operation name to lower kebab case:
// "getItem", "Get_Item" and "get item" all become "get-item".
func NormalizeOperation(op string) string {
	op = strings.TrimSpace(op)
	var b strings.Builder
	b.Grow(len(op) + 4)

	prevLower := false
	pendingDash := false
	for _, r := range op {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			pendingDash = b.Len() > 0
			prevLower = false
			continue
		case unicode.IsUpper(r):
			if prevLower {
				pendingDash = true
			}
			r = unicode.ToLower(r)
			prevLower = false
		default:
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidateTopicName validates a publish topic name
func ValidateTopicName(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("wildcards not allowed in topic names")
	}

	segments := strings.Split(topic, Separator)
	for i, segment := range segments {
		if segment == "" && i != 0 && i != len(segments)-1 {
			return fmt.Errorf("empty segment not allowed in middle of topic")
		}
	}

	return nil
}
