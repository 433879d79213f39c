package guard

import "strings"

// topicMatches applies MQTT filter semantics: "+" matches one segment,
// a trailing "#" matches the remaining segments
func topicMatches(filter, topic string) bool {
	if filter == "" || filter == "#" {
		return true
	}

	filterSegments := strings.Split(filter, "/")
	topicSegments := strings.Split(topic, "/")

	for i, segment := range filterSegments {
		if segment == "#" {
			return true
		}
		if i >= len(topicSegments) {
			return false
		}
		if segment != "+" && segment != topicSegments[i] {
			return false
		}
	}

	return len(filterSegments) == len(topicSegments)
}
