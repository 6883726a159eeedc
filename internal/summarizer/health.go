package summarizer

import (
	"context"
	"fmt"
	"time"

	"github.com/localrivet/dialoguesum/internal/telemetry"
)

// Version is reported in health reports. It is set at build time.
var Version = "dev"

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	// StatusHealthy indicates a component is fully operational
	StatusHealthy HealthStatus = "healthy"

	// StatusDegraded indicates a component is operational but failing often
	StatusDegraded HealthStatus = "degraded"

	// StatusUnhealthy indicates a component is not operational
	StatusUnhealthy HealthStatus = "unhealthy"

	// StatusDisabled marks an optional component that is turned off
	StatusDisabled HealthStatus = "disabled"
)

// degradedThreshold is the success rate below which the service reports
// itself degraded, once minRequestsForRate requests have been seen.
const (
	degradedThreshold  = 50.0
	minRequestsForRate = 10
)

// HealthReport describes the summarizer's current health.
type HealthReport struct {
	Status        HealthStatus            `json:"status"`
	Timestamp     time.Time               `json:"timestamp"`
	Runtime       string                  `json:"runtime"`
	Model         string                  `json:"model"`
	RuntimeError  string                  `json:"runtime_error,omitempty"`
	Components    map[string]HealthStatus `json:"components"`
	ResponseTimes map[string]float64      `json:"response_times_ms"`
	CacheStats    map[string]int64        `json:"cache_stats"`
	SuccessRate   float64                 `json:"success_rate"`
	TotalRequests int64                   `json:"total_requests"`
	Inflight      int64                   `json:"inflight"`
	Workers       int                     `json:"workers"`
	Version       string                  `json:"version"`
}

// CreateHealthReport probes the runtime and summarizes the collected metrics.
func CreateHealthReport(ctx context.Context, s *ModelSummarizer) (*HealthReport, error) {
	if s == nil {
		return nil, fmt.Errorf("summarizer is nil")
	}

	m := s.GetMetrics()
	if m == nil {
		return nil, fmt.Errorf("metrics collector is nil")
	}

	report := &HealthReport{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Runtime:    s.RuntimeName(),
		Model:      s.ModelName(),
		Components: map[string]HealthStatus{"runtime": StatusHealthy, "cache": StatusHealthy},
		Workers:    s.Workers(),
		Version:    Version,
	}

	if err := s.Ping(ctx); err != nil {
		report.Status = StatusUnhealthy
		report.Components["runtime"] = StatusUnhealthy
		report.RuntimeError = err.Error()
	}
	if !s.CacheEnabled() {
		report.Components["cache"] = StatusDisabled
	}

	success := m.GetCounter(telemetry.MetricSummarizeSuccess)
	failure := m.GetCounter(telemetry.MetricSummarizeFailure)
	report.TotalRequests = success + failure
	if report.TotalRequests > 0 {
		report.SuccessRate = float64(success) / float64(report.TotalRequests) * 100.0
	}
	if report.Status == StatusHealthy && report.TotalRequests >= minRequestsForRate && report.SuccessRate < degradedThreshold {
		report.Status = StatusDegraded
	}

	report.ResponseTimes = map[string]float64{
		"generation_avg": toMillis(m.GetTimerAverage(telemetry.MetricGenerationTime)),
		"generation_p95": toMillis(m.GetTimerP95(telemetry.MetricGenerationTime)),
		"slot_wait_avg":  toMillis(m.GetTimerAverage(telemetry.MetricSlotWaitTime)),
	}
	report.CacheStats = map[string]int64{
		"hits":   m.GetCounter(telemetry.MetricCacheHits),
		"misses": m.GetCounter(telemetry.MetricCacheMisses),
		"errors": m.GetCounter(telemetry.MetricCacheErrors),
		"pruned": m.GetCounter(telemetry.MetricStorePruned),
	}
	report.Inflight = int64(m.GetGauge(telemetry.MetricInflight))

	return report, nil
}


func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
