package metrics

import (
	"sync"
	"time"
)

// PoolSource reports the gauges of a task pool
type PoolSource interface {
	MaxWorkers() int
	ActiveCount() int
	QueueLen() int
}

// MetricsCollector samples pool gauges on a fixed interval
type MetricsCollector struct {
	metrics  *Metrics
	source   PoolSource
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a collector sampling source every interval
func NewMetricsCollector(m *Metrics, source PoolSource, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MetricsCollector{
		metrics:  m,
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins sampling in the background
func (c *MetricsCollector) Start() {
	c.Collect()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stop:
				return
			}
		}
	}()
}

// Collect samples the pool once
func (c *MetricsCollector) Collect() {
	c.metrics.SetPoolMaxWorkers(c.source.MaxWorkers())
	c.metrics.SetPoolActiveWorkers(c.source.ActiveCount())
	c.metrics.SetPoolQueueDepth(c.source.QueueLen())
}

// Stop ends sampling and waits for the sampler to exit
func (c *MetricsCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}
