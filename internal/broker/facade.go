package broker

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"mqtt-rpc/config"
	"mqtt-rpc/internal/codec"
	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/metrics"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
)

// FacadeConfig configures the publish/subscribe facade
type FacadeConfig struct {
	// Main is the broker providing this service; requests and responses go through it
	Main             ConnectOptions
	SubscribeQoS     model.QoS
	OperationTimeout time.Duration
	Breaker          config.BreakerConfig
}

// Facade is the API business code uses to subscribe, publish requests and
// answer them
type Facade struct {
	registry *Registry
	cfg      FacadeConfig
	mainID   string
	handlers map[string]*SubscriptionHandler
	mainHeld bool
	breaker  *gobreaker.CircuitBreaker
	logger   *logger.Logger
	metrics  *metrics.Metrics
	mu       sync.Mutex
}

// NewFacade creates a facade over registry
func NewFacade(registry *Registry, cfg FacadeConfig, log *logger.Logger, m *metrics.Metrics) *Facade {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.ResetTimeout <= 0 {
		cfg.Breaker.ResetTimeout = 30 * time.Second
	}

	threshold := uint32(cfg.Breaker.FailureThreshold)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mqtt-publish",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("publish circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return &Facade{
		registry: registry,
		cfg:      cfg,
		mainID:   cfg.Main.ID(),
		handlers: make(map[string]*SubscriptionHandler),
		breaker:  breaker,
		logger:   log,
		metrics:  m,
	}
}

// MainConnectionID returns the identifier of the service-providing broker connection
func (f *Facade) MainConnectionID() string {
	return f.mainID
}

// ConnectMain establishes the connection to the service-providing broker.
// The facade holds one reference on it until Close.
func (f *Facade) ConnectMain() (mqtt.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	client, err := f.registry.Connect(f.mainID, f.cfg.Main)
	if err != nil {
		return nil, err
	}
	if f.mainHeld {
		f.registry.Release(f.mainID)
	}
	f.mainHeld = true
	return client, nil
}

// Subscribe subscribes to topic on the given broker and returns the queue
// its messages arrive on. Subscriptions to the same broker share one connection.
func (f *Facade) Subscribe(address string, port int, secure bool, topic string) (*MessageQueue, error) {
	if address == "" {
		return nil, rpcerr.Usage("address cannot be empty")
	}
	if topic == "" {
		return nil, rpcerr.Usage("topic cannot be empty")
	}

	id := ConnectionID(address, port, secure)

	f.mu.Lock()
	defer f.mu.Unlock()

	if handler, ok := f.handlers[id]; ok {
		return handler.AddSubscription(topic)
	}

	client, err := f.registry.Connect(id, f.optionsFor(id, address, port, secure))
	if err != nil {
		return nil, err
	}
	if !client.IsConnected() {
		f.registry.Release(id)
		return nil, rpcerr.ExternalService(ErrNotConnected, "connection %s is not connected", id)
	}

	handler, err := NewSubscriptionHandler(client, f.cfg.SubscribeQoS, f.logger, f.metrics)
	if err != nil {
		f.registry.Release(id)
		return nil, err
	}

	q, err := handler.AddSubscription(topic)
	if err != nil {
		f.registry.Release(id)
		return nil, err
	}

	f.handlers[id] = handler
	return q, nil
}

// Unsubscribe removes topic from the broker's subscription handler. The
// handler gives its connection back once its last topic is gone; the
// connection only closes when nothing else holds it. Unknown brokers are ignored.
func (f *Facade) Unsubscribe(address string, port int, secure bool, topic string) error {
	id := ConnectionID(address, port, secure)

	f.mu.Lock()
	defer f.mu.Unlock()

	handler, ok := f.handlers[id]
	if !ok {
		return nil
	}

	err := handler.RemoveSubscription(topic)

	if handler.Len() == 0 {
		delete(f.handlers, id)
		f.registry.Release(id)
	}

	return err
}

// Publish sends a request to baseTopic + operation on the main broker
func (f *Facade) Publish(baseTopic, operation, sender string, qos model.QoS, payload interface{}) error {
	if baseTopic == "" {
		return rpcerr.Usage("base topic cannot be empty")
	}
	if operation == "" {
		return rpcerr.Usage("operation cannot be empty")
	}

	client, err := f.mainClient()
	if err != nil {
		return err
	}

	body, err := codec.Marshal(model.PublishEnvelope{Sender: sender, Payload: payload})
	if err != nil {
		return rpcerr.Internal(err, "failed to serialize request")
	}

	return f.send(client, "request", model.FullTopic(baseTopic, operation), qos, body)
}

// Response answers a request on topic. The trace id and status are always sent.
func (f *Facade) Response(receiver, topic, traceID string, qos model.QoS, status model.Status, payload interface{}) error {
	if topic == "" {
		return rpcerr.Usage("response topic cannot be empty")
	}

	client, err := f.mainClient()
	if err != nil {
		return err
	}

	body, err := codec.Marshal(model.ResponseEnvelope{
		Receiver: receiver,
		TraceID:  traceID,
		Status:   status,
		Payload:  payload,
	})
	if err != nil {
		return rpcerr.Internal(err, "failed to serialize response")
	}

	return f.send(client, "response", topic, qos, body)
}

// Close gives back every connection the facade holds
func (f *Facade) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id := range f.handlers {
		f.registry.Release(id)
		delete(f.handlers, id)
	}
	if f.mainHeld {
		f.registry.Release(f.mainID)
		f.mainHeld = false
	}
}

func (f *Facade) mainClient() (mqtt.Client, error) {
	client, ok := f.registry.Client(f.mainID)
	if !ok || !client.IsConnected() {
		return nil, rpcerr.Configuration(ErrNotConnected, "main broker %s is not connected", f.mainID)
	}
	return client, nil
}

func (f *Facade) send(client mqtt.Client, kind, topic string, qos model.QoS, body []byte) error {
	_, err := f.breaker.Execute(func() (interface{}, error) {
		return nil, WaitToken(client.Publish(topic, byte(qos), false, body), f.cfg.OperationTimeout)
	})
	if err != nil {
		f.metrics.IncPublishTotal(kind, "error")
		f.logger.Error("failed to publish message",
			"kind", kind,
			"topic", topic,
			"error", err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return rpcerr.ExternalService(err, "publishing to %s suspended", topic)
		}
		return rpcerr.ExternalService(err, "failed to publish to %s", topic)
	}

	f.metrics.IncPublishTotal(kind, "success")
	f.logger.Debug("published message",
		"kind", kind,
		"topic", topic,
		"payloadSize", len(body))
	return nil
}

// optionsFor reuses the main broker's credentials for its own id and
// otherwise connects anonymously with a generated client id
func (f *Facade) optionsFor(id, address string, port int, secure bool) ConnectOptions {
	if id == f.mainID {
		return f.cfg.Main
	}
	return ConnectOptions{
		Address:        address,
		Port:           port,
		Secure:         secure,
		TLS:            f.cfg.Main.TLS,
		ConnectTimeout: f.cfg.Main.ConnectTimeout,
	}
}
