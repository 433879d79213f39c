package broker

import (
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/metrics"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/queue"
	"mqtt-rpc/internal/rpcerr"
)

// MessageQueue receives the messages of one subscribed topic
type MessageQueue = queue.Queue[model.MessageContainer]

// SubscriptionHandler routes the inbound messages of one connection into
// per-topic queues
type SubscriptionHandler struct {
	client  mqtt.Client
	qos     byte
	queues  map[string]*MessageQueue
	logger  *logger.Logger
	metrics *metrics.Metrics
	mu      sync.RWMutex
}

// NewSubscriptionHandler wraps an already connected client
func NewSubscriptionHandler(client mqtt.Client, qos model.QoS, log *logger.Logger, m *metrics.Metrics) (*SubscriptionHandler, error) {
	if client == nil {
		return nil, rpcerr.ExternalService(ErrNotConnected, "cannot create subscription handler: connection is nil")
	}
	if !client.IsConnected() {
		return nil, rpcerr.ExternalService(ErrNotConnected, "cannot create subscription handler")
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &SubscriptionHandler{
		client:  client,
		qos:     byte(qos),
		queues:  make(map[string]*MessageQueue),
		logger:  log,
		metrics: m,
	}, nil
}

// HandleMessage is the inbound callback installed for every subscription
func (s *SubscriptionHandler) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	s.mu.RLock()
	q, ok := s.queues[msg.Topic()]
	s.mu.RUnlock()

	if !ok {
		s.metrics.IncMessagesTotal("dropped")
		s.logger.Debug("dropping message for unknown topic", "topic", msg.Topic())
		return
	}

	q.Put(model.NewMessageContainer(msg.Topic(), msg))
	s.metrics.IncMessagesTotal("queued")
}

// AddSubscription subscribes to topic and returns a fresh queue for its messages
func (s *SubscriptionHandler) AddSubscription(topic string) (*MessageQueue, error) {
	if err := model.ValidateTopicName(topic); err != nil {
		return nil, rpcerr.Usage("invalid topic %q: %v", topic, err)
	}

	// registered before subscribing so early deliveries are not dropped
	q := queue.New[model.MessageContainer]()
	s.mu.Lock()
	previous := s.queues[topic]
	s.queues[topic] = q
	s.mu.Unlock()

	if previous != nil {
		previous.Clear()
	}

	if err := WaitToken(s.client.Subscribe(topic, s.qos, s.HandleMessage), DefaultOperationTimeout); err != nil {
		s.mu.Lock()
		if s.queues[topic] == q {
			delete(s.queues, topic)
		}
		s.mu.Unlock()

		s.logger.Error("failed to subscribe to topic",
			"topic", topic,
			"error", err)
		return nil, rpcerr.ExternalService(err, "failed to subscribe to topic %s", topic)
	}

	s.logger.Debug("subscribed to topic", "topic", topic)
	return q, nil
}

// RemoveSubscription unsubscribes from topic and drops its queue
func (s *SubscriptionHandler) RemoveSubscription(topic string) error {
	err := WaitToken(s.client.Unsubscribe(topic), DefaultOperationTimeout)

	s.mu.Lock()
	q, ok := s.queues[topic]
	delete(s.queues, topic)
	s.mu.Unlock()

	if ok {
		q.Clear()
	}

	if err != nil {
		s.logger.Error("failed to unsubscribe from topic",
			"topic", topic,
			"error", err)
		return rpcerr.ExternalService(err, "failed to unsubscribe from topic %s", topic)
	}

	s.logger.Debug("unsubscribed from topic", "topic", topic)
	return nil
}

// Topics returns the currently subscribed topics
func (s *SubscriptionHandler) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.queues))
	for topic := range s.queues {
		topics = append(topics, topic)
	}
	return topics
}

// Len returns the number of subscribed topics
func (s *SubscriptionHandler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queues)
}
