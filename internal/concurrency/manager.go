package concurrency

import (
	"sync"
	"time"

	"mqtt-rpc/internal/logger"
	"mqtt-rpc/internal/metrics"
)

// Mode is the ceiling policy of the adaptive manager
type Mode int

const (
	// Uncapped lets the pool grow up to its configured maximum
	Uncapped Mode = iota
	// Capped pins the ceiling to the number of tasks running when latency degraded
	Capped
)

func (m Mode) String() string {
	if m == Capped {
		return "capped"
	}
	return "uncapped"
}

// Resizable is the part of a pool the manager steers
type Resizable interface {
	ActiveCount() int
	MaxWorkers() int
	SetMaxWorkers(n int)
}

// ManagerConfig holds the governor's tunables
type ManagerConfig struct {
	WindowSize       int
	LatencyThreshold time.Duration
	// MaxWorkers is the ceiling restored in uncapped mode. Defaults to the
	// pool's ceiling at construction.
	MaxWorkers int
}

// Manager watches task latencies and caps pool growth while the mean latency
// of a full sample window stays above the threshold.
type Manager struct {
	pool      Resizable
	threshold time.Duration
	maxCeil   int

	mu     sync.Mutex
	window []time.Duration
	next   int
	count  int
	sum    time.Duration
	mode   Mode

	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewManager creates a governor for pool
func NewManager(pool Resizable, cfg ManagerConfig, log *logger.Logger, m *metrics.Metrics) *Manager {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	if cfg.LatencyThreshold <= 0 {
		cfg.LatencyThreshold = 500 * time.Millisecond
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = pool.MaxWorkers()
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Manager{
		pool:      pool,
		threshold: cfg.LatencyThreshold,
		maxCeil:   cfg.MaxWorkers,
		window:    make([]time.Duration, cfg.WindowSize),
		logger:    log,
		metrics:   m,
	}
}

// RegisterLatency records a completed task's duration and re-evaluates the mode
func (m *Manager) RegisterLatency(d time.Duration) {
	m.metrics.ObserveTaskLatency(d)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == len(m.window) {
		m.sum -= m.window[m.next]
	} else {
		m.count++
	}
	m.window[m.next] = d
	m.sum += d
	m.next = (m.next + 1) % len(m.window)

	if m.count < len(m.window) {
		return
	}

	mean := m.sum / time.Duration(m.count)
	exceeded := mean > m.threshold

	switch {
	case exceeded && m.mode == Uncapped:
		active := m.pool.ActiveCount()
		m.pool.SetMaxWorkers(active)
		m.mode = Capped
		m.metrics.IncModeTransition(Capped.String())
		m.logger.Warn("task latency above threshold, capping pool",
			"meanLatency", mean,
			"threshold", m.threshold,
			"ceiling", active)
	case !exceeded && m.mode == Capped:
		m.pool.SetMaxWorkers(m.maxCeil)
		m.mode = Uncapped
		m.metrics.IncModeTransition(Uncapped.String())
		m.logger.Info("task latency recovered, uncapping pool",
			"meanLatency", mean,
			"ceiling", m.maxCeil)
	}
}

// Mode returns the current ceiling policy
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Samples returns the number of samples held in the window
func (m *Manager) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
