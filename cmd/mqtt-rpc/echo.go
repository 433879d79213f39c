package main

import (
	"context"

	"mqtt-rpc/internal/codec"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
)

// echoHandler answers every operation with the request payload
type echoHandler struct {
	baseTopic string
	responses *codec.Responses
}

func newEchoHandler(baseTopic string, responses *codec.Responses) *echoHandler {
	return &echoHandler{baseTopic: baseTopic, responses: responses}
}

func (h *echoHandler) BaseTopic() string { return h.baseTopic }

func (h *echoHandler) Handle(_ context.Context, req *model.Request) error {
	if req.Payload == nil {
		return rpcerr.InvalidInput(nil, "operation %s requires a payload", req.Operation)
	}
	return h.responses.Success(req, model.StatusOK, map[string]interface{}{
		"operation": req.Operation,
		"echo":      req.Payload,
	})
}
