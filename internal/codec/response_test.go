package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
)

type responseCall struct {
	receiver string
	topic    string
	traceID  string
	qos      model.QoS
	status   model.Status
	payload  interface{}
}

type recordingResponder struct {
	calls []responseCall
	err   error
}

func (r *recordingResponder) Response(receiver, topic, traceID string, qos model.QoS, status model.Status, payload interface{}) error {
	r.calls = append(r.calls, responseCall{receiver, topic, traceID, qos, status, payload})
	return r.err
}

func TestSuccessResponse(t *testing.T) {
	responder := &recordingResponder{}
	responses := NewResponses(responder, "inventory", nil)

	req := &model.Request{
		TraceID:       "t1",
		ResponseTopic: "resp",
		QoS:           model.ExactlyOnce,
		Requester:     "billing",
	}
	require.NoError(t, responses.Success(req, model.StatusCreated, "done"))

	require.Len(t, responder.calls, 1)
	assert.Equal(t, responseCall{"billing", "resp", "t1", model.ExactlyOnce, model.StatusCreated, "done"}, responder.calls[0])

	require.NoError(t, responses.Success(&model.Request{TraceID: "t2"}, model.StatusOK, nil))
	require.NoError(t, responses.Success(nil, model.StatusOK, nil))
	assert.Len(t, responder.calls, 1)
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status model.Status
		kind   string
	}{
		{"unauthorized", rpcerr.Unauthorized("token expired"), model.StatusUnauthorized, "UnauthorizedError"},
		{"forbidden", rpcerr.Forbidden("no access"), model.StatusForbidden, "ForbiddenError"},
		{"invalid input", rpcerr.InvalidInput(errors.New("bad"), "decode"), model.StatusBadRequest, "InvalidInputError"},
		{"not found", rpcerr.NotFound("item %s", "A-1"), model.StatusNotFound, "NotFoundError"},
		{"timeout", rpcerr.Timeout("slow"), model.StatusTimeout, "TimeoutError"},
		{"locked", rpcerr.Locked("busy"), model.StatusLocked, "LockedError"},
		{"external", rpcerr.ExternalService(nil, "saturated"), model.StatusExternalServerError, "ExternalServiceError"},
		{"plain error", errors.New("boom"), model.StatusInternalServerError, "UnknownError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responder := &recordingResponder{}
			responses := NewResponses(responder, "inventory", nil)
			req := &model.Request{TraceID: "t1", ResponseTopic: "resp", QoS: model.AtLeastOnce}

			require.NoError(t, responses.Error(tt.err, req))

			require.Len(t, responder.calls, 1)
			call := responder.calls[0]
			assert.Equal(t, "resp", call.topic)
			assert.Equal(t, "t1", call.traceID)
			assert.Equal(t, model.AtLeastOnce, call.qos)
			assert.Equal(t, tt.status, call.status)

			body, ok := call.payload.(model.ErrorBody)
			require.True(t, ok)
			assert.Equal(t, tt.err.Error(), body.ErrorMessage)
			assert.Equal(t, tt.status.Code(), body.ErrorCode)
			assert.Equal(t, tt.kind, body.ExceptionType)
			assert.Equal(t, "inventory", body.Origin)
		})
	}
}

func TestErrorResponseWithoutTarget(t *testing.T) {
	responder := &recordingResponder{}
	responses := NewResponses(responder, "inventory", nil)

	require.NoError(t, responses.Error(errors.New("boom"), nil))
	require.NoError(t, responses.Error(errors.New("boom"), &model.Request{TraceID: "t1"}))
	assert.Empty(t, responder.calls)
}

func TestErrorResponsePropagatesSendFailure(t *testing.T) {
	responder := &recordingResponder{err: rpcerr.ExternalService(nil, "broker down")}
	responses := NewResponses(responder, "inventory", nil)

	err := responses.Error(errors.New("boom"), &model.Request{ResponseTopic: "resp"})
	assert.ErrorIs(t, err, rpcerr.ErrExternalService)
}
