package telemetry

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCountersAndGauges(t *testing.T) {
	m := NewMetricsCollector()

	m.IncrementCounter(MetricSummarizeRequests, 1)
	m.IncrementCounter(MetricSummarizeRequests, 2)
	if got := m.GetCounter(MetricSummarizeRequests); got != 3 {
		t.Errorf("counter = %d, want 3", got)
	}

	m.SetGauge(MetricRuntimeHealthy, 1)
	m.AddGauge(MetricInflight, 1)
	m.AddGauge(MetricInflight, 1)
	m.AddGauge(MetricInflight, -1)
	if got := m.GetGauge(MetricInflight); got != 1 {
		t.Errorf("inflight = %v, want 1", got)
	}
	if got := m.GetGauge(MetricRuntimeHealthy); got != 1 {
		t.Errorf("healthy = %v, want 1", got)
	}

	m.Reset()
	if m.GetCounter(MetricSummarizeRequests) != 0 {
		t.Error("Reset did not clear counters")
	}
}

func TestTimers(t *testing.T) {
	m := NewMetricsCollector()

	if m.GetTimerAverage(MetricGenerationTime) != 0 || m.GetTimerP95(MetricGenerationTime) != 0 {
		t.Error("empty timer should report zero")
	}

	for i := 1; i <= 20; i++ {
		m.RecordTimer(MetricGenerationTime, time.Duration(i)*time.Millisecond)
	}
	if avg := m.GetTimerAverage(MetricGenerationTime); avg != 10500*time.Microsecond {
		t.Errorf("avg = %v, want 10.5ms", avg)
	}
	if p := m.GetTimerP95(MetricGenerationTime); p != 20*time.Millisecond {
		t.Errorf("p95 = %v, want 20ms", p)
	}

	for i := 0; i < maxTimerSamples+50; i++ {
		m.RecordTimer(MetricSlotWaitTime, time.Millisecond)
	}
	if n := m.Snapshot().Timers[MetricSlotWaitTime].Count; n != maxTimerSamples {
		t.Errorf("kept %d samples, want %d", n, maxTimerSamples)
	}
}

func TestTimestamps(t *testing.T) {
	m := NewMetricsCollector()
	if m.GetTimeSince(MetricLastSuccess) != 0 {
		t.Error("unknown timestamp should report zero")
	}
	m.RecordTimestamp(MetricLastSuccess)
	if m.GetTimeSince(MetricLastSuccess) < 0 {
		t.Error("negative time since")
	}
}

func TestReport(t *testing.T) {
	m := NewMetricsCollector()
	m.IncrementCounter(MetricCacheHits, 4)
	m.SetGauge(MetricInflight, 0)
	m.RecordTimer(MetricGenerationTime, time.Second)
	m.RecordTimestamp(MetricLastSuccess)

	report := m.GetReport()
	for _, want := range []string{"summarizer.cache.hits: 4", "summarizer.inflight", "summarizer.generation_time: avg=1s", "summarizer.last_success"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestConcurrentUpdates(t *testing.T) {
	m := NewMetricsCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter(MetricAPIRequests, 1)
			m.RecordTimer(MetricGenerationTime, time.Millisecond)
			_ = m.GetReport()
		}()
	}
	wg.Wait()

	if got := m.GetCounter(MetricAPIRequests); got != 50 {
		t.Errorf("counter = %d, want 50", got)
	}
}
