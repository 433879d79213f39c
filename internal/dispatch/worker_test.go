package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/queue"
	"mqtt-rpc/internal/rpcerr"
	"mqtt-rpc/internal/stats"
)

func TestWorkerRunBeforeInit(t *testing.T) {
	w := NewWorker(newTestHandler("inventory/"), WorkerConfig{Pool: newTestPool(t)}, nil, nil, nil)

	assert.Equal(t, StateNotInitialized, w.State())
	assert.ErrorIs(t, w.Run(context.Background()), rpcerr.ErrConfiguration)
	assert.ErrorIs(t, w.Start(context.Background()), rpcerr.ErrConfiguration)
	assert.ErrorIs(t, w.Init(nil), rpcerr.ErrUsage)
}

func TestWorkerInitSortsFilters(t *testing.T) {
	filters := []Filter{
		&testFilter{order: 30},
		&testFilter{order: 10},
		&testFilter{order: 20},
	}
	w := NewWorker(newTestHandler("inventory/"), WorkerConfig{Pool: newTestPool(t), Filters: filters}, nil, nil, nil)

	require.NoError(t, w.Init(queue.New[model.MessageContainer]()))
	assert.Equal(t, StateInitialized, w.State())

	var orders []int
	for _, f := range w.Filters() {
		orders = append(orders, f.Order())
	}
	assert.Equal(t, []int{10, 20, 30}, orders)
}

func TestWorkerRejectionRespondsWithError(t *testing.T) {
	responder := &recordingResponder{}
	pool := &rejectingPool{}
	st := stats.NewStatsCollector()
	w := NewWorker(newTestHandler("inventory/"), WorkerConfig{
		Pool:      pool,
		Responses: newResponses(responder),
	}, nil, nil, st)

	q := queue.New[model.MessageContainer]()
	require.NoError(t, w.Init(q))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() {
		w.Stop()
		w.Wait()
	})

	q.Put(requestContainer("inventory/get-item", `{"traceId":"t1","responseTopic":"resp","qosRequirement":1}`))

	require.Eventually(t, func() bool { return len(responder.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	calls := responder.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "resp", calls[0].topic)
	assert.Equal(t, "t1", calls[0].traceID)
	assert.Equal(t, model.StatusExternalServerError, calls[0].status)
	assert.Equal(t, model.AtLeastOnce, calls[0].qos)
	assert.Equal(t, int64(1), pool.submitted.Load())
	assert.Equal(t, uint64(1), st.Rejected())
}

func TestWorkerRejectionWithoutTarget(t *testing.T) {
	responder := &recordingResponder{}
	pool := &rejectingPool{}
	st := stats.NewStatsCollector()
	w := NewWorker(newTestHandler("inventory/"), WorkerConfig{
		Pool:      pool,
		Responses: newResponses(responder),
	}, nil, nil, st)

	q := queue.New[model.MessageContainer]()
	require.NoError(t, w.Init(q))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() {
		w.Stop()
		w.Wait()
	})

	q.Put(requestContainer("inventory/get-item", `not json`))
	q.Put(requestContainer("inventory/get-item", `{"traceId":"t2"}`))

	require.Eventually(t, func() bool { return st.Rejected() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, responder.Calls())
}

func TestWorkerStopAndRestart(t *testing.T) {
	handler := newTestHandler("inventory/")
	w := NewWorker(handler, WorkerConfig{Pool: newTestPool(t)}, nil, nil, nil)

	require.NoError(t, w.Init(queue.New[model.MessageContainer]()))
	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, StateRunning, w.State())

	assert.ErrorIs(t, w.Init(queue.New[model.MessageContainer]()), rpcerr.ErrConfiguration)

	w.Stop()
	w.Wait()
	assert.Equal(t, StateStopped, w.State())

	q := queue.New[model.MessageContainer]()
	require.NoError(t, w.Init(q))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() {
		w.Stop()
		w.Wait()
	})

	q.Put(requestContainer("inventory/list", `{}`))
	req := handler.waitRequest(t)
	assert.Equal(t, "list", req.Operation)
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	w := NewWorker(newTestHandler("inventory/"), WorkerConfig{Pool: newTestPool(t)}, nil, nil, nil)
	require.NoError(t, w.Init(queue.New[model.MessageContainer]()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return w.State() == StateRunning }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, StateStopped, w.State())
}
