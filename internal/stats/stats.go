package stats

import (
	"sync/atomic"
	"time"

	"mqtt-rpc/internal/codec"
)

// StatsCollector counts requests through the dispatch pipeline. A nil
// collector ignores every update.
type StatsCollector struct {
	StartTime time.Time

	received  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{StartTime: time.Now()}
}

// IncReceived counts a message accepted by the dispatcher
func (s *StatsCollector) IncReceived() {
	if s != nil {
		s.received.Add(1)
	}
}

// IncProcessed counts a request handled without error
func (s *StatsCollector) IncProcessed() {
	if s != nil {
		s.processed.Add(1)
	}
}

// IncFailed counts a request that ended in an error response
func (s *StatsCollector) IncFailed() {
	if s != nil {
		s.failed.Add(1)
	}
}

// IncRejected counts a message the saturated pool refused
func (s *StatsCollector) IncRejected() {
	if s != nil {
		s.rejected.Add(1)
	}
}

func (s *StatsCollector) Received() uint64  { return s.received.Load() }
func (s *StatsCollector) Processed() uint64 { return s.processed.Load() }
func (s *StatsCollector) Failed() uint64    { return s.failed.Load() }
func (s *StatsCollector) Rejected() uint64  { return s.rejected.Load() }

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"uptime":             time.Since(s.StartTime).Round(time.Second).String(),
		"messages_received":  s.Received(),
		"messages_processed": s.Processed(),
		"messages_failed":    s.Failed(),
		"messages_rejected":  s.Rejected(),
		"processing_rate":    s.CalculateRate(),
	}
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return codec.Marshal(s.GetStats())
}

// CalculateRate calculates message processing rate
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(s.Processed()) / uptime
}
