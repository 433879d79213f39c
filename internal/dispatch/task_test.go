package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/queue"
	"mqtt-rpc/internal/rpcerr"
	"mqtt-rpc/internal/stats"
)

type taskFixture struct {
	handler   *testHandler
	responder *recordingResponder
	latency   *countingRecorder
	stats     *stats.StatsCollector
	worker    *Worker
}

func newTaskFixture(t *testing.T, filters ...Filter) *taskFixture {
	t.Helper()
	f := &taskFixture{
		handler:   newTestHandler("inventory/"),
		responder: &recordingResponder{},
		latency:   &countingRecorder{},
		stats:     stats.NewStatsCollector(),
	}
	f.worker = NewWorker(f.handler, WorkerConfig{
		Pool:      newTestPool(t),
		Responses: newResponses(f.responder),
		Filters:   filters,
	}, nil, nil, f.stats)
	require.NoError(t, f.worker.Init(queue.New[model.MessageContainer]()))
	return f
}

func (f *taskFixture) run(payload string) {
	NewMessageTask(f.worker, requestContainer("inventory/getItem", payload), f.latency).Run(context.Background())
}

const requestWithTarget = `{"traceId":"t1","responseTopic":"resp","payload":{"sku":"A-1"}}`

func TestMessageTaskSuccess(t *testing.T) {
	f := newTaskFixture(t)

	f.run(requestWithTarget)

	req := f.handler.waitRequest(t)
	assert.Equal(t, "get-item", req.Operation)
	assert.Equal(t, "inventory/", req.BaseTopic)
	assert.Empty(t, f.responder.Calls())
	assert.Equal(t, int64(1), f.latency.count.Load())
	assert.Equal(t, uint64(1), f.stats.Processed())
}

func TestMessageTaskFilterChain(t *testing.T) {
	var calls []int
	f := newTaskFixture(t,
		&testFilter{order: 2, calls: &calls, err: rpcerr.Forbidden("not allowed")},
		&testFilter{order: 1, calls: &calls, requester: "billing"},
		&testFilter{order: 3, calls: &calls},
	)

	f.run(requestWithTarget)

	assert.Equal(t, []int{1, 2}, calls)
	assert.Empty(t, f.handler.handled)

	responses := f.responder.Calls()
	require.Len(t, responses, 1)
	assert.Equal(t, model.StatusForbidden, responses[0].status)
	assert.Equal(t, "billing", responses[0].receiver)
	assert.Equal(t, "t1", responses[0].traceID)
	assert.Equal(t, int64(1), f.latency.count.Load())
	assert.Equal(t, uint64(1), f.stats.Failed())
}

func TestMessageTaskHandlerError(t *testing.T) {
	f := newTaskFixture(t)
	f.handler.err = rpcerr.NotFound("item A-1")

	f.run(requestWithTarget)

	responses := f.responder.Calls()
	require.Len(t, responses, 1)
	assert.Equal(t, model.StatusNotFound, responses[0].status)
	body, ok := responses[0].payload.(model.ErrorBody)
	require.True(t, ok)
	assert.Equal(t, "NotFoundError", body.ExceptionType)
	assert.Equal(t, "test-service", body.Origin)
	assert.Equal(t, int64(1), f.latency.count.Load())
}

func TestMessageTaskHandlerPanic(t *testing.T) {
	f := newTaskFixture(t)
	f.handler.panicMsg = "nil map"

	assert.NotPanics(t, func() { f.run(requestWithTarget) })

	responses := f.responder.Calls()
	require.Len(t, responses, 1)
	assert.Equal(t, model.StatusInternalServerError, responses[0].status)
	assert.Equal(t, int64(1), f.latency.count.Load())
	assert.Equal(t, uint64(1), f.stats.Failed())
}

func TestMessageTaskFireAndForgetError(t *testing.T) {
	f := newTaskFixture(t)
	f.handler.err = rpcerr.Timeout("slow backend")

	f.run(`{"traceId":"t1"}`)

	assert.Empty(t, f.responder.Calls())
	assert.Equal(t, int64(1), f.latency.count.Load())
}

func TestMessageTaskParseFailure(t *testing.T) {
	f := newTaskFixture(t)

	f.run(`{"responseTopic":`)

	assert.Empty(t, f.handler.handled)
	assert.Empty(t, f.responder.Calls())
	assert.Equal(t, int64(1), f.latency.count.Load())
	assert.Equal(t, uint64(1), f.stats.Failed())
}
