package monitor

import "time"

// HealthStatus is a derived per-worker classification. It is always
// recomputed from the rolling metrics window, never hand-edited.
type HealthStatus int

const (
	// HealthHealthy means the worker is within all thresholds.
	HealthHealthy HealthStatus = iota
	// HealthDegraded means error rate or latency exceeds its threshold.
	HealthDegraded
	// HealthFailing means error rate exceeds 50% or latency exceeds twice
	// its threshold.
	HealthFailing
	// HealthCrashed means the worker's circuit breaker is open.
	HealthCrashed
)

var healthNames = map[HealthStatus]string{
	HealthHealthy:  "healthy",
	HealthDegraded: "degraded",
	HealthFailing:  "failing",
	HealthCrashed:  "crashed",
}

// String returns the string representation of the health status.
func (h HealthStatus) String() string {
	if name, ok := healthNames[h]; ok {
		return name
	}
	return "unknown"
}

// Trend classifies latency movement across the metrics window.
type Trend int

const (
	TrendStable Trend = iota
	TrendImproving
	TrendDegrading
)

var trendNames = map[Trend]string{
	TrendStable:    "stable",
	TrendImproving: "improving",
	TrendDegrading: "degrading",
}

// String returns the string representation of the trend.
func (t Trend) String() string {
	if name, ok := trendNames[t]; ok {
		return name
	}
	return "unknown"
}

// WorkerStats summarizes a worker's window for callers.
type WorkerStats struct {
	WorkerID    string        `json:"worker_id"`
	Samples     int           `json:"samples"`
	SuccessRate float64       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
	Trend       Trend         `json:"trend"`
}
