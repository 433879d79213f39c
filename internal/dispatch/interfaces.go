// Package dispatch routes inbound requests from their topic to the
// business handler owning the topic's base, one worker per base topic.
package dispatch

import (
	"context"
	"time"

	"mqtt-rpc/internal/concurrency"
	"mqtt-rpc/internal/model"
)

// TopicHandler is the business logic behind one base topic
type TopicHandler interface {
	// BaseTopic returns the base topic this handler owns, ending in "/"
	BaseTopic() string
	Handle(ctx context.Context, req *model.Request) error
}

// Filter inspects a request before its handler runs. A filter rejects the
// request by returning an error; a filter that authenticates sets req.Requester.
type Filter interface {
	Order() int
	DoFilter(authKey string, req *model.Request) error
}

// Submitter accepts tasks without blocking; concurrency.Pool implements it
type Submitter interface {
	Submit(task concurrency.Task) error
}

// LatencyRecorder receives the elapsed time of every task; concurrency.Manager implements it
type LatencyRecorder interface {
	RegisterLatency(d time.Duration)
}

// TaskFactory builds the task processing one message for worker
type TaskFactory func(worker *Worker, container model.MessageContainer, latency LatencyRecorder) concurrency.Task

type nopRecorder struct{}

func (nopRecorder) RegisterLatency(time.Duration) {}
