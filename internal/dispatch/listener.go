package dispatch

import (
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-rpc/internal/broker"
	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
)

// Listener exposes services on their own broker connection and feeds their
// requests into a Dispatcher
type Listener struct {
	registry   *broker.Registry
	dispatcher *Dispatcher
	opts       broker.ConnectOptions
	qos        model.QoS
	logger     *logger.Logger

	mu     sync.Mutex
	client mqtt.Client
}

// NewListener creates a listener connecting with opts
func NewListener(registry *broker.Registry, dispatcher *Dispatcher, opts broker.ConnectOptions, qos model.QoS, log *logger.Logger) *Listener {
	if log == nil {
		log = logger.NewNop()
	}
	return &Listener{
		registry:   registry,
		dispatcher: dispatcher,
		opts:       opts,
		qos:        qos,
		logger:     log,
	}
}

// Listen subscribes every operation of svc and routes its requests to the
// handler registered for svc.BaseTopic
func (l *Listener) Listen(svc model.ServiceModel) error {
	if !strings.EqualFold(svc.Protocol, model.ProtocolMQTT) {
		return rpcerr.Configuration(nil, "service %s uses protocol %q, expected %q", svc.Name, svc.Protocol, model.ProtocolMQTT)
	}
	if svc.BaseTopic == "" || !strings.HasSuffix(svc.BaseTopic, model.Separator) {
		return rpcerr.Usage("service %s has invalid base topic %q", svc.Name, svc.BaseTopic)
	}
	if len(svc.Operations) == 0 {
		return rpcerr.Usage("service %s declares no operations", svc.Name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil {
		client, err := l.registry.Connect(l.opts.ID(), l.opts)
		if err != nil {
			return err
		}
		l.client = client
	}

	subscribed := make([]string, 0, len(svc.Operations))
	for _, topic := range svc.FullTopics() {
		// registered first so the first delivery finds its queue
		if err := l.dispatcher.AddTopic(topic); err != nil {
			l.abandon(svc, subscribed)
			return err
		}

		if err := broker.WaitToken(l.client.Subscribe(topic, byte(l.qos), l.onMessage), broker.DefaultOperationTimeout); err != nil {
			l.abandon(svc, subscribed)
			l.logger.Error("failed to subscribe service operation",
				"service", svc.Name,
				"topic", topic,
				"error", err)
			return rpcerr.ExternalService(err, "failed to subscribe to %s", topic)
		}
		subscribed = append(subscribed, topic)

		l.logger.Debug("listening on topic", "service", svc.Name, "topic", topic)
	}

	l.logger.Info("service listening",
		"service", svc.Name,
		"baseTopic", svc.BaseTopic,
		"operations", len(svc.Operations))
	return nil
}

// Disconnect unsubscribes every active topic, revokes their base topics
// and gives back the listener's connection
func (l *Listener) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil {
		return rpcerr.Usage("listener is not connected")
	}

	topics := l.dispatcher.Topics()
	var unsubErr error
	if len(topics) > 0 {
		if err := broker.WaitToken(l.client.Unsubscribe(topics...), broker.DefaultOperationTimeout); err != nil {
			l.logger.Error("failed to unsubscribe service topics", "error", err)
			unsubErr = rpcerr.ExternalService(err, "failed to unsubscribe service topics")
		}
	}

	revoked := make(map[string]struct{})
	for _, topic := range topics {
		base, err := model.BaseTopicOf(topic)
		if err != nil {
			continue
		}
		if _, ok := revoked[base]; ok {
			continue
		}
		revoked[base] = struct{}{}
		l.dispatcher.RevokeBaseTopic(base)
	}

	l.registry.Release(l.opts.ID())
	l.client = nil

	l.logger.Info("listener disconnected", "topics", len(topics))
	return unsubErr
}

// abandon undoes a partially completed Listen
func (l *Listener) abandon(svc model.ServiceModel, subscribed []string) {
	l.dispatcher.RevokeBaseTopic(svc.BaseTopic)
	if len(subscribed) == 0 {
		return
	}
	if err := broker.WaitToken(l.client.Unsubscribe(subscribed...), broker.DefaultOperationTimeout); err != nil {
		l.logger.Error("failed to unsubscribe abandoned topics",
			"service", svc.Name,
			"topics", subscribed,
			"error", err)
	}
}

func (l *Listener) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := l.dispatcher.QueueMessage(msg.Topic(), msg); err != nil {
		l.logger.Warn("dropping inbound message",
			"topic", msg.Topic(),
			"error", err)
	}
}
