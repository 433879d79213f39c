package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mqtt-rpc/internal/broker"
	"mqtt-rpc/internal/codec"
	"mqtt-rpc/internal/concurrency"
	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/metrics"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/rpcerr"
	"mqtt-rpc/internal/stats"
)

const tracerName = "mqtt-rpc/dispatch"

// WorkerState is the lifecycle position of a worker
type WorkerState int

const (
	StateNotInitialized WorkerState = iota
	StateInitialized
	StateRunning
	StateStopping
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateNotInitialized:
		return "not-initialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkerConfig holds the collaborators shared by every worker
type WorkerConfig struct {
	Pool        Submitter
	Latency     LatencyRecorder
	Responses   *codec.Responses
	Filters     []Filter
	TaskFactory TaskFactory
	Tracer      trace.Tracer
}

// Worker drains the queue of one base topic and hands every message to the
// shared pool. A stopped worker can be initialized and started again.
type Worker struct {
	handler   TopicHandler
	pool      Submitter
	latency   LatencyRecorder
	responses *codec.Responses
	newTask   TaskFactory
	tracer    trace.Tracer
	installed []Filter

	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.StatsCollector

	mu      sync.RWMutex
	state   WorkerState
	filters []Filter
	queue   *broker.MessageQueue
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a worker for handler
func NewWorker(handler TopicHandler, cfg WorkerConfig, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector) *Worker {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Latency == nil {
		cfg.Latency = nopRecorder{}
	}
	if cfg.TaskFactory == nil {
		cfg.TaskFactory = NewMessageTask
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}

	return &Worker{
		handler:   handler,
		pool:      cfg.Pool,
		latency:   cfg.Latency,
		responses: cfg.Responses,
		newTask:   cfg.TaskFactory,
		tracer:    cfg.Tracer,
		installed: append([]Filter(nil), cfg.Filters...),
		logger:    log.With("baseTopic", handler.BaseTopic()),
		metrics:   m,
		stats:     st,
	}
}

func (w *Worker) BaseTopic() string { return w.handler.BaseTopic() }

func (w *Worker) Handler() TopicHandler { return w.handler }

func (w *Worker) State() WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Filters returns the filter chain in execution order
func (w *Worker) Filters() []Filter {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.filters
}

// Init hands the worker the queue to drain and orders its filter chain
func (w *Worker) Init(q *broker.MessageQueue) error {
	if q == nil {
		return rpcerr.Usage("worker for %s needs a queue", w.BaseTopic())
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateRunning || w.state == StateStopping {
		return rpcerr.Configuration(nil, "worker for %s is %s", w.BaseTopic(), w.state)
	}

	filters := append([]Filter(nil), w.installed...)
	sort.SliceStable(filters, func(i, j int) bool {
		return filters[i].Order() < filters[j].Order()
	})

	w.filters = filters
	w.queue = q
	w.state = StateInitialized
	return nil
}

// Start drains the queue on a new goroutine until ctx is cancelled or Stop is called
func (w *Worker) Start(ctx context.Context) error {
	runCtx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	go w.loop(runCtx)
	return nil
}

// Run drains the queue on the calling goroutine until ctx is cancelled or Stop is called
func (w *Worker) Run(ctx context.Context) error {
	runCtx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	w.loop(runCtx)
	return nil
}

// Stop asks a running worker to leave its loop
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateRunning {
		return
	}
	w.state = StateStopping
	w.cancel()
}

// Wait blocks until the current run, if any, has ended
func (w *Worker) Wait() {
	if done := w.exited(); done != nil {
		<-done
	}
}

// exited returns the channel closed when the current run ends, nil if the
// worker never ran
func (w *Worker) exited() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.done
}

func (w *Worker) begin(ctx context.Context) (context.Context, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateInitialized {
		return nil, rpcerr.Configuration(nil, "worker for %s cannot run while %s", w.BaseTopic(), w.state)
	}
	if w.pool == nil {
		return nil, rpcerr.Configuration(nil, "worker for %s has no pool", w.BaseTopic())
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.state = StateRunning
	return runCtx, nil
}

func (w *Worker) loop(ctx context.Context) {
	w.mu.RLock()
	q := w.queue
	w.mu.RUnlock()

	w.logger.Info("worker started")

	defer func() {
		w.mu.Lock()
		w.cancel()
		w.state = StateStopped
		w.queue = nil
		close(w.done)
		w.mu.Unlock()
		w.logger.Info("worker stopped")
	}()

	for {
		container, err := q.Take(ctx)
		if err != nil {
			return
		}
		w.submit(container)
	}
}

func (w *Worker) submit(container model.MessageContainer) {
	task := w.newTask(w, container, w.latency)
	err := w.pool.Submit(task)
	if err == nil {
		return
	}

	w.stats.IncRejected()
	w.metrics.IncTasksTotal("rejected")

	reason := rpcerr.ExternalService(err, "request on %s rejected", container.Topic)
	if errors.Is(err, concurrency.ErrClosed) {
		reason = rpcerr.ExternalService(err, "service shutting down, request on %s rejected", container.Topic)
	}

	_, req, parseErr := codec.ParseMessage(&container)
	if parseErr != nil {
		w.logger.Error("rejected message without response target",
			"topic", container.Topic,
			"error", reason,
			"parseError", parseErr)
		return
	}

	if err := w.respondError(reason, req); err != nil {
		w.logger.Error("failed to report rejected message",
			"topic", container.Topic,
			"traceId", req.TraceID,
			"error", err)
		return
	}

	w.logger.Warn("message rejected, pool saturated",
		"topic", container.Topic,
		"traceId", req.TraceID)
}

func (w *Worker) respondError(err error, req *model.Request) error {
	if w.responses == nil {
		w.logger.Debug("no responder configured, dropping error", "error", err)
		return nil
	}
	return w.responses.Error(err, req)
}
