// Package metrics exposes prometheus instrumentation for the messaging core.
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mqtt_rpc"

// Metrics holds all collectors of the messaging core
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionEvents  *prometheus.CounterVec
	messagesTotal     *prometheus.CounterVec
	tasksTotal        *prometheus.CounterVec
	taskLatency       prometheus.Histogram
	poolMaxWorkers    prometheus.Gauge
	poolActiveWorkers prometheus.Gauge
	poolQueueDepth    prometheus.Gauge
	modeTransitions   *prometheus.CounterVec
	publishTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors. A nil registerer skips registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of cached broker connections",
		}),
		connectionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_events_total",
			Help:      "Broker connection events by type",
		}, []string{"event"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by result",
		}, []string{"result"}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Per-message tasks by outcome",
		}, []string{"outcome"}),
		taskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_latency_seconds",
			Help:      "Per-message task latency",
			Buckets:   prometheus.DefBuckets,
		}),
		poolMaxWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_max_workers",
			Help:      "Current worker ceiling of the shared task pool",
		}),
		poolActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_active_workers",
			Help:      "Running workers of the shared task pool",
		}),
		poolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_queue_depth",
			Help:      "Tasks waiting in the shared task pool",
		}),
		modeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_mode_transitions_total",
			Help:      "Adaptive concurrency mode switches by target mode",
		}, []string{"mode"}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Outbound publishes by kind and result",
		}, []string{"kind", "result"}),
	}

	if reg == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.connectionsActive,
		m.connectionEvents,
		m.messagesTotal,
		m.tasksTotal,
		m.taskLatency,
		m.poolMaxWorkers,
		m.poolActiveWorkers,
		m.poolQueueDepth,
		m.modeTransitions,
		m.publishTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) SetConnectionsActive(n int) {
	if m == nil {
		return
	}
	m.connectionsActive.Set(float64(n))
}

// IncConnectionEvent counts connect, lost and disconnect events
func (m *Metrics) IncConnectionEvent(event string) {
	if m == nil {
		return
	}
	m.connectionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) IncMessagesTotal(result string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncTasksTotal(outcome string) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTaskLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.taskLatency.Observe(d.Seconds())
}

func (m *Metrics) SetPoolMaxWorkers(n int) {
	if m == nil {
		return
	}
	m.poolMaxWorkers.Set(float64(n))
}

func (m *Metrics) SetPoolActiveWorkers(n int) {
	if m == nil {
		return
	}
	m.poolActiveWorkers.Set(float64(n))
}

func (m *Metrics) SetPoolQueueDepth(n int) {
	if m == nil {
		return
	}
	m.poolQueueDepth.Set(float64(n))
}

func (m *Metrics) IncModeTransition(mode string) {
	if m == nil {
		return
	}
	m.modeTransitions.WithLabelValues(mode).Inc()
}

// IncPublishTotal counts publishes; kind is "request" or "response"
func (m *Metrics) IncPublishTotal(kind, result string) {
	if m == nil {
		return
	}
	m.publishTotal.WithLabelValues(kind, result).Inc()
}
