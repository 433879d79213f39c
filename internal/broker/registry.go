package broker

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/metrics"
	"mqtt-rpc/internal/rpcerr"
)

// Registry caches one broker connection per connection identifier. Every
// successful Connect takes a reference that Release gives back; the
// connection closes when its last reference is released.
type Registry struct {
	conns   map[string]*connection
	factory ClientFactory
	logger  *logger.Logger
	metrics *metrics.Metrics
	mu      sync.RWMutex
}

type connection struct {
	client mqtt.Client
	refs   int
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithClientFactory replaces the paho client constructor
func WithClientFactory(factory ClientFactory) RegistryOption {
	return func(r *Registry) {
		r.factory = factory
	}
}

// NewRegistry creates an empty connection registry
func NewRegistry(log *logger.Logger, m *metrics.Metrics, opts ...RegistryOption) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Registry{
		conns:   make(map[string]*connection),
		factory: mqtt.NewClient,
		logger:  log,
		metrics: m,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect returns the connection cached under id, establishing and caching
// a new one when none exists, and takes a reference on it. A cached client
// that is down is reconnected in place so holders of it stay valid.
func (r *Registry) Connect(id string, opts ConnectOptions) (mqtt.Client, error) {
	if id == "" {
		return nil, rpcerr.Usage("connection id cannot be empty")
	}
	if opts.Address == "" {
		return nil, rpcerr.Usage("broker address cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[id]; ok {
		if !conn.client.IsConnected() {
			if err := r.dial(id, opts, conn.client); err != nil {
				return nil, err
			}
		}
		conn.refs++
		return conn.client, nil
	}

	clientOpts, err := r.clientOptions(id, opts)
	if err != nil {
		return nil, err
	}

	client := r.factory(clientOpts)
	if err := r.dial(id, opts, client); err != nil {
		return nil, err
	}

	r.conns[id] = &connection{client: client, refs: 1}
	r.metrics.SetConnectionsActive(len(r.conns))
	r.logger.Info("broker connection established",
		"id", id,
		"broker", brokerURL(opts))

	return client, nil
}

// Client returns the cached connection for id
func (r *Registry) Client(id string) (mqtt.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return conn.client, true
}

// Refs returns the number of references held on the connection cached under id
func (r *Registry) Refs(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if conn, ok := r.conns[id]; ok {
		return conn.refs
	}
	return 0
}

// Release gives back a reference taken by Connect. The connection is closed
// and evicted when no reference remains.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	conn.refs--
	if conn.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.conns, id)
	count := len(r.conns)
	r.mu.Unlock()

	r.closeClient(id, conn.client, count)
}

// Disconnect closes and evicts the connection cached under id regardless of
// the references held on it
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	count := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.closeClient(id, conn.client, count)
}

// IDs returns the identifiers of all cached connections
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Close disconnects every cached connection
func (r *Registry) Close() {
	for _, id := range r.IDs() {
		r.Disconnect(id)
	}
}

func (r *Registry) dial(id string, opts ConnectOptions, client mqtt.Client) error {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	if err := WaitToken(client.Connect(), timeout); err != nil {
		r.metrics.IncConnectionEvent("failed")
		r.logger.Error("failed to connect to broker",
			"id", id,
			"broker", brokerURL(opts),
			"error", err)
		return rpcerr.ExternalService(err, "failed to connect to broker %s", brokerURL(opts))
	}
	return nil
}

func (r *Registry) closeClient(id string, client mqtt.Client, remaining int) {
	client.Disconnect(disconnectQuiesce)
	r.metrics.SetConnectionsActive(remaining)
	r.metrics.IncConnectionEvent("disconnect")
	r.logger.Info("broker connection closed", "id", id)
}

func (r *Registry) clientOptions(id string, opts ConnectOptions) (*mqtt.ClientOptions, error) {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = clientIDPrefix + "-" + uuid.NewString()
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(brokerURL(opts)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout).
		SetMaxReconnectInterval(time.Minute)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	if opts.Secure {
		tlsConfig, err := NewTLSConfig(opts.TLS)
		if err != nil {
			return nil, rpcerr.Configuration(err, "invalid tls configuration for %s", id)
		}
		clientOpts.SetTLSConfig(tlsConfig)
	}

	clientOpts.SetOnConnectHandler(func(mqtt.Client) {
		r.metrics.IncConnectionEvent("connect")
		r.logger.Debug("mqtt client connected", "id", id)
	})
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		r.metrics.IncConnectionEvent("lost")
		r.logger.Error("mqtt connection lost", "id", id, "error", err)
	})
	clientOpts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		r.logger.Info("mqtt client reconnecting", "id", id)
	})

	return clientOpts, nil
}

func brokerURL(opts ConnectOptions) string {
	scheme := "tcp"
	if opts.Secure {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, opts.Address, opts.Port)
}
