package model

// ProtocolMQTT names this transport in a service model
const ProtocolMQTT = "mqtt"

// ServiceModel describes a service interface as supplied by service discovery
type ServiceModel struct {
	Name       string
	Protocol   string
	BaseTopic  string
	Operations []string
}

// FullTopics returns the topic of every declared operation
func (s ServiceModel) FullTopics() []string {
	topics := make([]string, 0, len(s.Operations))
	for _, op := range s.Operations {
		topics = append(topics, FullTopic(s.BaseTopic, op))
	}
	return topics
}
