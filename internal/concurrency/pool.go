package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/metrics"
)

var (
	// ErrRejected is returned by Submit when the pool is saturated
	ErrRejected = errors.New("pool: task rejected, pool saturated")

	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("pool: closed")
)

// Task is a unit of work run by the pool
type Task interface {
	Run(ctx context.Context)
}

// TaskFunc adapts a function to Task
type TaskFunc func(ctx context.Context)

func (f TaskFunc) Run(ctx context.Context) { f(ctx) }

// PoolConfig holds pool configuration
type PoolConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

// Pool runs tasks on goroutines started on demand up to a mutable ceiling.
// Once the ceiling is reached tasks wait in a bounded queue; a full queue
// rejects. At least MinWorkers goroutines stay alive once started.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	minWorkers  int
	idleTimeout time.Duration
	tasks       chan Task

	mu         sync.Mutex
	maxWorkers int
	running    int
	closed     bool

	busy atomic.Int64

	logger  *logger.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewPool creates a new task pool
func NewPool(cfg PoolConfig, log *logger.Logger, m *metrics.Metrics) *Pool {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:         ctx,
		cancel:      cancel,
		minWorkers:  cfg.MinWorkers,
		idleTimeout: cfg.IdleTimeout,
		tasks:       make(chan Task, cfg.QueueSize),
		maxWorkers:  cfg.MaxWorkers,
		logger:      log,
		metrics:     m,
	}
	m.SetPoolMaxWorkers(cfg.MaxWorkers)
	return p
}

// Submit hands a task to the pool without blocking
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.running < p.maxWorkers {
		p.running++
		p.wg.Add(1)
		p.metrics.SetPoolActiveWorkers(p.running)
		p.mu.Unlock()
		go p.worker(task)
		return nil
	}
	p.mu.Unlock()

	select {
	case p.tasks <- task:
		p.metrics.SetPoolQueueDepth(len(p.tasks))
		return nil
	default:
		return ErrRejected
	}
}

// SetMaxWorkers moves the ceiling; it never drops below MinWorkers.
// Surplus workers exit after finishing their current task.
func (p *Pool) SetMaxWorkers(n int) {
	if n < p.minWorkers {
		n = p.minWorkers
	}
	p.mu.Lock()
	p.maxWorkers = n
	p.mu.Unlock()
	p.metrics.SetPoolMaxWorkers(n)
}

func (p *Pool) MaxWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxWorkers
}

// Running returns the number of live worker goroutines
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// ActiveCount returns the number of tasks currently executing
func (p *Pool) ActiveCount() int {
	return int(p.busy.Load())
}

// QueueLen returns the number of tasks waiting for a worker
func (p *Pool) QueueLen() int {
	return len(p.tasks)
}

// Close stops accepting tasks and waits for running tasks to finish.
// Queued tasks that no worker picked up are dropped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	if dropped := len(p.tasks); dropped > 0 {
		p.logger.Warn("pool closed with queued tasks", "dropped", dropped)
	}
}

func (p *Pool) worker(task Task) {
	defer p.wg.Done()

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		if task != nil {
			p.execute(task)
			task = nil
		}

		if p.shrink() {
			return
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(p.idleTimeout)

		select {
		case task = <-p.tasks:
			p.metrics.SetPoolQueueDepth(len(p.tasks))
		case <-idle.C:
			if p.retire() {
				return
			}
		case <-p.ctx.Done():
			p.exit()
			return
		}
	}
}

func (p *Pool) execute(task Task) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panic recovered", "panic", r)
		}
	}()

	task.Run(p.ctx)
}

// shrink retires this worker when the ceiling dropped below the live count
func (p *Pool) shrink() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running > p.maxWorkers {
		p.running--
		p.metrics.SetPoolActiveWorkers(p.running)
		return true
	}
	return false
}

// retire lets an idle worker exit while keeping MinWorkers alive
func (p *Pool) retire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running <= p.minWorkers || len(p.tasks) > 0 {
		return false
	}
	p.running--
	p.metrics.SetPoolActiveWorkers(p.running)
	return true
}

func (p *Pool) exit() {
	p.mu.Lock()
	p.running--
	p.metrics.SetPoolActiveWorkers(p.running)
	p.mu.Unlock()
}
