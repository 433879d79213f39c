package metrics

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	active atomic.Int64
}

func (p *fakePool) MaxWorkers() int  { return 32 }
func (p *fakePool) ActiveCount() int { return int(p.active.Load()) }
func (p *fakePool) QueueLen() int    { return 5 }

func TestMetricsCollector(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	pool := &fakePool{}
	pool.active.Store(3)

	collector := NewMetricsCollector(m, pool, 10*time.Millisecond)
	collector.Start()
	defer collector.Stop()

	assert.Equal(t, 32.0, testutil.ToFloat64(m.poolMaxWorkers))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.poolActiveWorkers))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.poolQueueDepth))

	pool.active.Store(7)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.poolActiveWorkers) == 7.0
	}, time.Second, 5*time.Millisecond)
}

func TestMetricsCollectorStopIsIdempotent(t *testing.T) {
	collector := NewMetricsCollector(nil, &fakePool{}, time.Millisecond)
	collector.Start()
	collector.Stop()
	assert.NotPanics(t, collector.Stop)
}
