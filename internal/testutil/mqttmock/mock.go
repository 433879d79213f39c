// Package mqttmock provides in-memory paho client doubles for tests.
package mqttmock

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Token implements mqtt.Token and completes immediately
type Token struct {
	err error
}

func NewToken(err error) *Token { return &Token{err: err} }

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Error() error                   { return t.err }
func (t *Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Message implements mqtt.Message
type Message struct {
	topic   string
	payload []byte
	qos     byte
}

func NewMessage(topic string, payload []byte) *Message {
	return &Message{topic: topic, payload: payload}
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return m.qos }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Ack()              {}

// Publication is a recorded Publish call
type Publication struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// Client implements mqtt.Client and records every call
type Client struct {
	mu sync.Mutex

	connected bool

	ConnectErr     error
	SubscribeErr   error
	UnsubscribeErr error
	PublishErr     error

	// TopicSubscribeErrs fails subscriptions to individual topics
	TopicSubscribeErrs map[string]error

	connectCalls     int
	disconnectCalls  int
	subscribeCalls   []string
	unsubscribeCalls []string
	handlers         map[string]mqtt.MessageHandler
	published        []Publication
}

func NewClient() *Client {
	return &Client{handlers: make(map[string]mqtt.MessageHandler)}
}

// NewConnectedClient returns a client that reports itself connected
func NewConnectedClient() *Client {
	c := NewClient()
	c.connected = true
	return c
}

func (c *Client) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++
	if c.ConnectErr == nil {
		c.connected = true
	}
	return NewToken(c.ConnectErr)
}

func (c *Client) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCalls++
	c.connected = false
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}
	c.published = append(c.published, Publication{Topic: topic, QoS: qos, Retained: retained, Payload: body})
	return NewToken(c.PublishErr)
}

func (c *Client) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeCalls = append(c.subscribeCalls, topic)
	err := c.SubscribeErr
	if topicErr, ok := c.TopicSubscribeErrs[topic]; ok {
		err = topicErr
	}
	if err == nil {
		c.handlers[topic] = callback
	}
	return NewToken(err)
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, callback)
	}
	return NewToken(c.SubscribeErr)
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribeCalls = append(c.unsubscribeCalls, topics...)
	for _, topic := range topics {
		delete(c.handlers, topic)
	}
	return NewToken(c.UnsubscribeErr)
}

func (c *Client) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }

func (c *Client) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

// SetConnected forces the reported connection state
func (c *Client) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

// Deliver invokes the callback subscribed on topic, as the transport would.
// It reports false when nothing is subscribed on topic.
func (c *Client) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	handler, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok || handler == nil {
		return false
	}
	handler(c, NewMessage(topic, payload))
	return true
}

func (c *Client) ConnectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

func (c *Client) DisconnectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectCalls
}

func (c *Client) SubscribeCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribeCalls...)
}

func (c *Client) UnsubscribeCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unsubscribeCalls...)
}

func (c *Client) Published() []Publication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Publication(nil), c.published...)
}

// Factory builds mock clients and records the options each was built with
type Factory struct {
	mu      sync.Mutex
	clients []*Client
	options []*mqtt.ClientOptions

	// Prepare, when set, configures each client before it is returned
	Prepare func(*Client)
}

// NewClient matches the registry's client factory signature
func (f *Factory) NewClient(opts *mqtt.ClientOptions) mqtt.Client {
	c := NewClient()
	if f.Prepare != nil {
		f.Prepare(c)
	}
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.options = append(f.options, opts)
	f.mu.Unlock()
	return c
}

func (f *Factory) Clients() []*Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Client(nil), f.clients...)
}

func (f *Factory) Options() []*mqtt.ClientOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*mqtt.ClientOptions(nil), f.options...)
}

// Last returns the most recently built client or nil
func (f *Factory) Last() *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return nil
	}
	return f.clients[len(f.clients)-1]
}
