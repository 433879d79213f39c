package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mqtt-rpc/internal/codec"
	"mqtt-rpc/internal/concurrency"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
)

// MessageTask processes one inbound message: parse, filter chain, handler.
// Every failure, panics included, becomes an error response.
type MessageTask struct {
	worker    *Worker
	container model.MessageContainer
	latency   LatencyRecorder
}

// NewMessageTask is the default TaskFactory
func NewMessageTask(worker *Worker, container model.MessageContainer, latency LatencyRecorder) concurrency.Task {
	if latency == nil {
		latency = nopRecorder{}
	}
	return &MessageTask{
		worker:    worker,
		container: container,
		latency:   latency,
	}
}

func (t *MessageTask) Run(ctx context.Context) {
	w := t.worker
	start := time.Now()

	ctx, span := w.tracer.Start(ctx, "process "+w.BaseTopic(),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "mqtt"),
			attribute.String("messaging.destination.name", t.container.Topic),
		))

	var req *model.Request

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("recovered from handler panic",
				"topic", t.container.Topic,
				"panic", r,
				"stack", string(debug.Stack()))
			t.fail(span, rpcerr.Internal(fmt.Errorf("panic: %v", r), "handler for %s failed", t.container.Topic), req)
		}

		t.latency.RegisterLatency(time.Since(start))
		span.End()
	}()

	if err := t.process(ctx, span, &req); err != nil {
		t.fail(span, err, req)
		return
	}

	w.stats.IncProcessed()
	w.metrics.IncTasksTotal("success")
}

func (t *MessageTask) process(ctx context.Context, span trace.Span, out **model.Request) error {
	w := t.worker

	authKey, req, err := codec.ParseMessage(&t.container)
	if err != nil {
		return err
	}
	*out = req

	span.SetAttributes(
		attribute.String("rpc.operation", req.Operation),
		attribute.String("rpc.trace_id", req.TraceID),
	)

	for _, filter := range w.Filters() {
		if err := filter.DoFilter(authKey, req); err != nil {
			return err
		}
	}

	return w.handler.Handle(ctx, req)
}

func (t *MessageTask) fail(span trace.Span, err error, req *model.Request) {
	w := t.worker

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	w.stats.IncFailed()
	w.metrics.IncTasksTotal("failure")

	traceID := ""
	if req != nil {
		traceID = req.TraceID
	}
	w.logger.Warn("request failed",
		"topic", t.container.Topic,
		"traceId", traceID,
		"error", err)

	if respErr := w.respondError(err, req); respErr != nil {
		w.logger.Error("failed to send error response",
			"topic", t.container.Topic,
			"traceId", traceID,
			"error", respErr)
	}
}
