package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mqtt-rpc/internal/codec"
	"mqtt-rpc/internal/concurrency"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/testutil/mqttmock"
)

type testHandler struct {
	base     string
	err      error
	panicMsg string
	handled  chan *model.Request
}

func newTestHandler(base string) *testHandler {
	return &testHandler{base: base, handled: make(chan *model.Request, 16)}
}

func (h *testHandler) BaseTopic() string { return h.base }

func (h *testHandler) Handle(_ context.Context, req *model.Request) error {
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	h.handled <- req
	return h.err
}

func (h *testHandler) waitRequest(t *testing.T) *model.Request {
	t.Helper()
	select {
	case req := <-h.handled:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
		return nil
	}
}

type testFilter struct {
	order     int
	err       error
	requester string
	calls     *[]int
}

func (f *testFilter) Order() int { return f.order }

func (f *testFilter) DoFilter(_ string, req *model.Request) error {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.order)
	}
	if f.requester != "" {
		req.Requester = f.requester
	}
	return f.err
}

type response struct {
	receiver string
	topic    string
	traceID  string
	qos      model.QoS
	status   model.Status
	payload  interface{}
}

type recordingResponder struct {
	mu    sync.Mutex
	calls []response
}

func (r *recordingResponder) Response(receiver, topic, traceID string, qos model.QoS, status model.Status, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, response{receiver, topic, traceID, qos, status, payload})
	return nil
}

func (r *recordingResponder) Calls() []response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]response(nil), r.calls...)
}

type countingRecorder struct {
	count atomic.Int64
}

func (c *countingRecorder) RegisterLatency(time.Duration) { c.count.Add(1) }

type rejectingPool struct {
	submitted atomic.Int64
}

func (p *rejectingPool) Submit(concurrency.Task) error {
	p.submitted.Add(1)
	return concurrency.ErrRejected
}

func newTestPool(t *testing.T) *concurrency.Pool {
	t.Helper()
	pool := concurrency.NewPool(concurrency.PoolConfig{MinWorkers: 1, MaxWorkers: 4, QueueSize: 16}, nil, nil)
	t.Cleanup(pool.Close)
	return pool
}

func newResponses(responder codec.Responder) *codec.Responses {
	return codec.NewResponses(responder, "test-service", nil)
}

func requestContainer(topic, payload string) model.MessageContainer {
	return model.NewMessageContainer(topic, mqttmock.NewMessage(topic, []byte(payload)))
}

// blockingResponder holds every response until release is closed
type blockingResponder struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingResponder() *blockingResponder {
	return &blockingResponder{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (r *blockingResponder) Response(string, string, string, model.QoS, model.Status, interface{}) error {
	r.entered <- struct{}{}
	<-r.release
	return nil
}
