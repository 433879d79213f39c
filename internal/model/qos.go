package model

import "fmt"

// QoS is the MQTT delivery guarantee carried from request to response
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

// ParseQoS converts a wire integer into a QoS level
func ParseQoS(v int) (QoS, error) {
	if v < 0 || v > 2 {
		return AtMostOnce, fmt.Errorf("invalid qos level %d (must be 0, 1, or 2)", v)
	}
	return QoS(v), nil
}

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "AT_MOST_ONCE"
	case AtLeastOnce:
		return "AT_LEAST_ONCE"
	case ExactlyOnce:
		return "EXACTLY_ONCE"
	default:
		return fmt.Sprintf("QoS(%d)", byte(q))
	}
}
