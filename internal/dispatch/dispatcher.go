package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-rpc/internal/broker"
	"mqtt-rpc/internal/codec"
	"mqtt-rpc/internal/concurrency"
	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/metrics"
	"mqtt-rpc/internal/model"
	"mqtt-rpc/internal/queue"
	"mqtt-rpc/internal/rpcerr"
	"mqtt-rpc/internal/stats"
)

// Options wires a Dispatcher. A nil Pool is replaced by a default pool
// governed by a default concurrency manager.
type Options struct {
	Pool        Submitter
	Latency     LatencyRecorder
	Responses   *codec.Responses
	Filters     []Filter
	TaskFactory TaskFactory
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	Stats       *stats.StatsCollector
}

// Dispatcher maps full topics onto the queue and worker of their base topic
type Dispatcher struct {
	opts   Options
	logger *logger.Logger

	mu         sync.Mutex
	workers    map[string]*Worker
	fullTopics map[string]struct{}
	queues     map[string]*broker.MessageQueue
	cancels    map[string]context.CancelFunc
}

var (
	defaultDispatcher *Dispatcher
	defaultOnce       sync.Once
)

// Default returns the process-wide dispatcher, built with default options on first use
func Default() *Dispatcher {
	defaultOnce.Do(func() {
		defaultDispatcher = New(Options{})
	})
	return defaultDispatcher
}

// New creates a dispatcher
func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Pool == nil {
		pool := concurrency.NewPool(concurrency.PoolConfig{}, opts.Logger, opts.Metrics)
		opts.Pool = pool
		if opts.Latency == nil {
			opts.Latency = concurrency.NewManager(pool, concurrency.ManagerConfig{}, opts.Logger, opts.Metrics)
		}
	}
	if opts.Latency == nil {
		opts.Latency = nopRecorder{}
	}

	return &Dispatcher{
		opts:       opts,
		logger:     opts.Logger,
		workers:    make(map[string]*Worker),
		fullTopics: make(map[string]struct{}),
		queues:     make(map[string]*broker.MessageQueue),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Register installs the handler owning handler.BaseTopic(). filters run
// after the dispatcher-wide filters of equal order.
func (d *Dispatcher) Register(handler TopicHandler, filters ...Filter) (*Worker, error) {
	if handler == nil {
		return nil, rpcerr.Usage("handler cannot be nil")
	}
	base := handler.BaseTopic()
	if base == "" || !strings.HasSuffix(base, model.Separator) {
		return nil, rpcerr.Configuration(nil, "handler base topic %q must end with %q", base, model.Separator)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for existing := range d.workers {
		if strings.HasPrefix(existing, base) || strings.HasPrefix(base, existing) {
			return nil, rpcerr.Configuration(nil, "base topic %s overlaps registered base topic %s", base, existing)
		}
	}

	worker := NewWorker(handler, WorkerConfig{
		Pool:        d.opts.Pool,
		Latency:     d.opts.Latency,
		Responses:   d.opts.Responses,
		Filters:     append(append([]Filter(nil), d.opts.Filters...), filters...),
		TaskFactory: d.opts.TaskFactory,
	}, d.logger, d.opts.Metrics, d.opts.Stats)

	d.workers[base] = worker
	d.logger.Debug("registered topic handler", "baseTopic", base)
	return worker, nil
}

// AddTopic records fullTopic and makes sure the worker of its base topic is running
func (d *Dispatcher) AddTopic(fullTopic string) error {
	if fullTopic == "" {
		return rpcerr.Usage("topic cannot be empty")
	}
	base, err := model.BaseTopicOf(fullTopic)
	if err != nil {
		return rpcerr.Usage("invalid topic %q: %v", fullTopic, err)
	}

	d.mu.Lock()
	if d.activeLocked(base) {
		d.fullTopics[fullTopic] = struct{}{}
		d.mu.Unlock()
		return nil
	}

	worker, ok := d.workers[base]
	if !ok {
		d.mu.Unlock()
		return rpcerr.Configuration(nil, "no handler for topic %s", fullTopic)
	}
	// queue left behind by a worker that stopped on its own
	d.dropLocked(base)
	previous := worker.exited()
	d.mu.Unlock()

	// a revoked or stopped worker may still be leaving its loop
	if previous != nil {
		<-previous
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.activeLocked(base) {
		d.fullTopics[fullTopic] = struct{}{}
		return nil
	}

	q := queue.New[model.MessageContainer]()
	if err := worker.Init(q); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := worker.Start(ctx); err != nil {
		cancel()
		return err
	}

	d.queues[base] = q
	d.cancels[base] = cancel
	d.fullTopics[fullTopic] = struct{}{}

	d.logger.Info("base topic activated", "baseTopic", base, "topic", fullTopic)
	return nil
}

// RevokeBaseTopic forgets every full topic under baseTopic, drops its queue
// and stops its worker. Messages already handed to the pool still complete.
func (d *Dispatcher) RevokeBaseTopic(baseTopic string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for topic := range d.fullTopics {
		if strings.HasPrefix(topic, baseTopic) {
			delete(d.fullTopics, topic)
		}
	}

	if d.dropLocked(baseTopic) {
		d.logger.Info("base topic revoked", "baseTopic", baseTopic)
	}
}

// activeLocked reports whether base has a queue drained by a running worker
func (d *Dispatcher) activeLocked(base string) bool {
	if _, ok := d.queues[base]; !ok {
		return false
	}
	worker, ok := d.workers[base]
	return ok && worker.State() == StateRunning
}

// dropLocked clears and forgets the queue of base and cancels its worker
func (d *Dispatcher) dropLocked(base string) bool {
	if q, ok := d.queues[base]; ok {
		q.Clear()
		delete(d.queues, base)
	}

	cancel, ok := d.cancels[base]
	if ok {
		cancel()
		delete(d.cancels, base)
	}
	return ok
}

// QueueMessage enqueues msg on the queue of the base topic owning topic. A
// base topic whose worker has stopped accepts nothing until it is added again.
func (d *Dispatcher) QueueMessage(topic string, msg mqtt.Message) error {
	if topic == "" {
		return rpcerr.Usage("topic cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		owner *broker.MessageQueue
		match string
	)
	for base, q := range d.queues {
		if strings.HasPrefix(topic, base) && len(base) > len(match) {
			owner, match = q, base
		}
	}
	if owner == nil {
		d.opts.Metrics.IncMessagesTotal("unroutable")
		return rpcerr.Configuration(nil, "no base topic registered for %s", topic)
	}
	if worker, ok := d.workers[match]; !ok || worker.State() != StateRunning {
		d.opts.Metrics.IncMessagesTotal("unroutable")
		return rpcerr.Configuration(nil, "worker for %s is not running", match)
	}

	owner.Put(model.NewMessageContainer(topic, msg))
	d.opts.Stats.IncReceived()
	d.opts.Metrics.IncMessagesTotal("dispatched")
	return nil
}

// Topics returns the active full topics in sorted order
func (d *Dispatcher) Topics() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	topics := make([]string, 0, len(d.fullTopics))
	for topic := range d.fullTopics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Worker returns the worker registered for baseTopic
func (d *Dispatcher) Worker(baseTopic string) (*Worker, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.workers[baseTopic]
	return w, ok
}

// Close revokes every active base topic and waits for the workers to stop
func (d *Dispatcher) Close() {
	d.mu.Lock()
	bases := make([]string, 0, len(d.queues))
	for base := range d.queues {
		bases = append(bases, base)
	}
	d.mu.Unlock()

	for _, base := range bases {
		d.RevokeBaseTopic(base)
	}

	d.mu.Lock()
	workers := make([]*Worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	for _, w := range workers {
		w.Wait()
	}
}
