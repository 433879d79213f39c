package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-rpc/internal/codec"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
)

type captureResponder struct {
	status  model.Status
	payload interface{}
	calls   int
}

func (c *captureResponder) Response(_, _, _ string, _ model.QoS, status model.Status, payload interface{}) error {
	c.calls++
	c.status = status
	c.payload = payload
	return nil
}

func TestEchoHandler(t *testing.T) {
	responder := &captureResponder{}
	handler := newEchoHandler("echo/", codec.NewResponses(responder, "echo", nil))
	assert.Equal(t, "echo/", handler.BaseTopic())

	req := &model.Request{Operation: "ping", ResponseTopic: "resp", Payload: "hello"}
	require.NoError(t, handler.Handle(context.Background(), req))

	assert.Equal(t, 1, responder.calls)
	assert.Equal(t, model.StatusOK, responder.status)
	assert.Equal(t, map[string]interface{}{"operation": "ping", "echo": "hello"}, responder.payload)

	err := handler.Handle(context.Background(), &model.Request{Operation: "ping", ResponseTopic: "resp"})
	assert.ErrorIs(t, err, rpcerr.ErrInvalidInput)
	assert.Equal(t, 1, responder.calls)
}
