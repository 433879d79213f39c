package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-rpc/internal/broker"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
	"mqtt-rpc/internal/testutil/mqttmock"
)

type listenerFixture struct {
	factory    *mqttmock.Factory
	registry   *broker.Registry
	dispatcher *Dispatcher
	handler    *testHandler
	listener   *Listener
}

func newListenerFixture(t *testing.T) *listenerFixture {
	t.Helper()
	f := &listenerFixture{factory: &mqttmock.Factory{}}
	f.registry = broker.NewRegistry(nil, nil, broker.WithClientFactory(f.factory.NewClient))
	f.dispatcher, _ = newTestDispatcher(t)
	f.handler = newTestHandler("inventory/")
	_, err := f.dispatcher.Register(f.handler)
	require.NoError(t, err)

	f.listener = NewListener(f.registry, f.dispatcher,
		broker.ConnectOptions{Address: "main-broker", Port: 1883, ClientID: "inventory-1"},
		model.AtLeastOnce, nil)
	return f
}

func inventoryService() model.ServiceModel {
	return model.ServiceModel{
		Name:       "inventory",
		Protocol:   model.ProtocolMQTT,
		BaseTopic:  "inventory/",
		Operations: []string{"getItem", "putItem"},
	}
}

func TestListenRoutesRequests(t *testing.T) {
	f := newListenerFixture(t)

	require.NoError(t, f.listener.Listen(inventoryService()))

	client := f.factory.Last()
	require.NotNil(t, client)
	assert.Equal(t, []string{"inventory/get-item", "inventory/put-item"}, client.SubscribeCalls())
	assert.Equal(t, []string{"inventory/get-item", "inventory/put-item"}, f.dispatcher.Topics())

	require.True(t, client.Deliver("inventory/put-item", []byte(`{"payload":{"sku":"A-1"}}`)))
	req := f.handler.waitRequest(t)
	assert.Equal(t, "put-item", req.Operation)
}

func TestListenRejectsForeignProtocol(t *testing.T) {
	f := newListenerFixture(t)
	svc := inventoryService()
	svc.Protocol = "http"

	assert.ErrorIs(t, f.listener.Listen(svc), rpcerr.ErrConfiguration)
	assert.Empty(t, f.factory.Clients())
}

func TestListenValidation(t *testing.T) {
	f := newListenerFixture(t)

	svc := inventoryService()
	svc.BaseTopic = "inventory"
	assert.ErrorIs(t, f.listener.Listen(svc), rpcerr.ErrUsage)

	svc = inventoryService()
	svc.Operations = nil
	assert.ErrorIs(t, f.listener.Listen(svc), rpcerr.ErrUsage)
}

func TestListenWithoutHandler(t *testing.T) {
	f := newListenerFixture(t)
	svc := inventoryService()
	svc.BaseTopic = "billing/"

	assert.ErrorIs(t, f.listener.Listen(svc), rpcerr.ErrConfiguration)
	assert.Empty(t, f.dispatcher.Topics())
	assert.Empty(t, f.factory.Last().SubscribeCalls())
}

func TestListenSubscribeFailureRevokesBaseTopic(t *testing.T) {
	f := newListenerFixture(t)
	f.factory.Prepare = func(c *mqttmock.Client) { c.SubscribeErr = errors.New("not authorized") }

	err := f.listener.Listen(inventoryService())
	assert.ErrorIs(t, err, rpcerr.ErrExternalService)
	assert.Empty(t, f.dispatcher.Topics())
}

func TestListenPartialSubscribeFailureUnsubscribes(t *testing.T) {
	f := newListenerFixture(t)
	f.factory.Prepare = func(c *mqttmock.Client) {
		c.TopicSubscribeErrs = map[string]error{"inventory/put-item": errors.New("not authorized")}
	}

	err := f.listener.Listen(inventoryService())
	assert.ErrorIs(t, err, rpcerr.ErrExternalService)

	client := f.factory.Last()
	assert.Equal(t, []string{"inventory/get-item"}, client.UnsubscribeCalls())
	assert.False(t, client.Deliver("inventory/get-item", []byte(`{}`)))
	assert.Empty(t, f.dispatcher.Topics())
}

func TestListenConnectFailure(t *testing.T) {
	f := newListenerFixture(t)
	f.factory.Prepare = func(c *mqttmock.Client) { c.ConnectErr = errors.New("refused") }

	assert.ErrorIs(t, f.listener.Listen(inventoryService()), rpcerr.ErrExternalService)
	assert.Empty(t, f.dispatcher.Topics())
}

func TestListenerSurvivesConsumerUnsubscribe(t *testing.T) {
	f := newListenerFixture(t)
	facade := broker.NewFacade(f.registry, broker.FacadeConfig{
		Main: broker.ConnectOptions{Address: "main-broker", Port: 1883, ClientID: "inventory-1"},
	}, nil, nil)

	require.NoError(t, f.listener.Listen(inventoryService()))
	_, err := facade.ConnectMain()
	require.NoError(t, err)
	client := f.factory.Last()

	_, err = facade.Subscribe("main-broker", 1883, false, "events/stock")
	require.NoError(t, err)
	require.NoError(t, facade.Unsubscribe("main-broker", 1883, false, "events/stock"))

	assert.Len(t, f.factory.Clients(), 1)
	assert.Equal(t, 0, client.DisconnectCalls())
	require.True(t, client.Deliver("inventory/get-item", []byte(`{"payload":{"sku":"A-1"}}`)))
	req := f.handler.waitRequest(t)
	assert.Equal(t, "get-item", req.Operation)

	// the facade still holds the connection after the listener leaves
	require.NoError(t, f.listener.Disconnect())
	assert.Equal(t, 0, client.DisconnectCalls())
	require.NoError(t, facade.Publish("billing/", "charge", "inventory", model.AtMostOnce, nil))

	facade.Close()
	assert.Equal(t, 1, client.DisconnectCalls())
}

func TestListenerDisconnect(t *testing.T) {
	f := newListenerFixture(t)

	assert.ErrorIs(t, f.listener.Disconnect(), rpcerr.ErrUsage)

	require.NoError(t, f.listener.Listen(inventoryService()))
	client := f.factory.Last()

	require.NoError(t, f.listener.Disconnect())

	assert.ElementsMatch(t, []string{"inventory/get-item", "inventory/put-item"}, client.UnsubscribeCalls())
	assert.Empty(t, f.dispatcher.Topics())
	assert.Empty(t, f.registry.IDs())
	assert.Equal(t, 1, client.DisconnectCalls())

	assert.ErrorIs(t, f.listener.Disconnect(), rpcerr.ErrUsage)
}
