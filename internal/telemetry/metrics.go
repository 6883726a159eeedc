// Package telemetry provides metrics collection and tracing for the
// summarization service.
package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricsCollector provides a thread-safe interface for collecting
// application metrics for monitoring and troubleshooting.
type MetricsCollector struct {
	counters   map[string]int64
	gauges     map[string]float64
	timers     map[string][]time.Duration
	latestTime map[string]time.Time
	mu         sync.RWMutex
}

// Metric names
const (
	MetricSummarizeRequests = "summarizer.requests"
	MetricSummarizeSuccess  = "summarizer.success"
	MetricSummarizeFailure  = "summarizer.failure"
	MetricSummarizeCanceled = "summarizer.canceled"

	MetricCacheHits   = "summarizer.cache.hits"
	MetricCacheMisses = "summarizer.cache.misses"
	MetricCacheErrors = "summarizer.cache.errors"

	MetricGenerationTime = "summarizer.generation_time"
	MetricSlotWaitTime   = "summarizer.slot_wait_time"
	MetricInflight       = "summarizer.inflight"
	MetricLastSuccess    = "summarizer.last_success"
	MetricRuntimeHealthy = "summarizer.runtime_healthy"

	MetricAPIRequests = "server.api.requests"
	MetricUIRequests  = "server.ui.requests"
	MetricMCPRequests = "server.mcp.requests"

	MetricStorePruned = "store.pruned"
)

// maxTimerSamples bounds the samples kept per timer.
const maxTimerSamples = 100

// TimerStats summarizes the samples of one timer.
type TimerStats struct {
	Count int           `json:"count"`
	Avg   time.Duration `json:"avg_ns"`
	P95   time.Duration `json:"p95_ns"`
}

// Snapshot is a point-in-time copy of every metric.
type Snapshot struct {
	Counters map[string]int64      `json:"counters"`
	Gauges   map[string]float64    `json:"gauges"`
	Timers   map[string]TimerStats `json:"timers"`
	Last     map[string]time.Time  `json:"last"`
}

// NewMetricsCollector creates a new MetricsCollector instance
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		timers:     make(map[string][]time.Duration),
		latestTime: make(map[string]time.Time),
	}
}

// IncrementCounter increments a named counter by the specified amount
func (m *MetricsCollector) IncrementCounter(name string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[name] += amount
}

// SetGauge sets a named gauge to the specified value
func (m *MetricsCollector) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gauges[name] = value
}

// AddGauge adds delta to a named gauge.
func (m *MetricsCollector) AddGauge(name string, delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gauges[name] += delta
}

// RecordTimer records a duration for the specified timer
func (m *MetricsCollector) RecordTimer(name string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := append(m.timers[name], duration)
	if len(samples) > maxTimerSamples {
		samples = samples[len(samples)-maxTimerSamples:]
	}
	m.timers[name] = samples
}

// RecordTimestamp records the current time for the specified event
func (m *MetricsCollector) RecordTimestamp(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latestTime[name] = time.Now()
}

// GetCounter retrieves the current value of a counter
func (m *MetricsCollector) GetCounter(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.counters[name]
}

// GetGauge retrieves the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.gauges[name]
}

// GetTimerAverage calculates the average duration for a timer
func (m *MetricsCollector) GetTimerAverage(name string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return average(m.timers[name])
}

// GetTimerP95 calculates the 95th percentile duration for a timer
func (m *MetricsCollector) GetTimerP95(name string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return p95(m.timers[name])
}

// GetTimeSince calculates the time elapsed since a recorded timestamp
func (m *MetricsCollector) GetTimeSince(name string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	timestamp, exists := m.latestTime[name]
	if !exists {
		return 0
	}

	return time.Since(timestamp)
}

// Snapshot copies the current metrics.
func (m *MetricsCollector) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Counters: make(map[string]int64, len(m.counters)),
		Gauges:   make(map[string]float64, len(m.gauges)),
		Timers:   make(map[string]TimerStats, len(m.timers)),
		Last:     make(map[string]time.Time, len(m.latestTime)),
	}
	for k, v := range m.counters {
		s.Counters[k] = v
	}
	for k, v := range m.gauges {
		s.Gauges[k] = v
	}
	for k, v := range m.timers {
		s.Timers[k] = TimerStats{Count: len(v), Avg: average(v), P95: p95(v)}
	}
	for k, v := range m.latestTime {
		s.Last[k] = v
	}
	return s
}

// GetReport generates a report of all collected metrics
func (m *MetricsCollector) GetReport() string {
	s := m.Snapshot()

	var b strings.Builder
	b.WriteString("Metrics Report:\n")
	b.WriteString("==============\n\n")

	b.WriteString("Counters:\n")
	for _, name := range sortedKeys(s.Counters) {
		fmt.Fprintf(&b, "  %s: %d\n", name, s.Counters[name])
	}

	b.WriteString("\nGauges:\n")
	for _, name := range sortedKeys(s.Gauges) {
		fmt.Fprintf(&b, "  %s: %.2f\n", name, s.Gauges[name])
	}

	b.WriteString("\nTimers:\n")
	for _, name := range sortedKeys(s.Timers) {
		t := s.Timers[name]
		fmt.Fprintf(&b, "  %s: avg=%v p95=%v count=%d\n", name, t.Avg, t.P95, t.Count)
	}

	b.WriteString("\nTime Since:\n")
	for _, name := range sortedKeys(s.Last) {
		ts := s.Last[name]
		fmt.Fprintf(&b, "  %s: %v ago (%s)\n", name, time.Since(ts).Round(time.Millisecond), ts.Format(time.RFC3339))
	}

	return b.String()
}

// Reset clears all collected metrics
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters = make(map[string]int64)
	m.gauges = make(map[string]float64)
	m.timers = make(map[string][]time.Duration)
	m.latestTime = make(map[string]time.Time)
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

func p95(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
