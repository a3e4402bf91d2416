package monitor

import (
	"time"

	engerrors "github.com/kairoai/engine/core/errors"
)

// OptimizationStrategy pairs a trigger predicate with a corrective action.
// Strategies are evaluated in priority order each cycle; only the first
// match per worker is applied, so one bad window cannot stack corrections.
type OptimizationStrategy struct {
	Name     string
	Priority int

	// Trigger inspects the worker's recomputed health and stats.
	Trigger func(m *Monitor, workerID string, health HealthStatus, stats WorkerStats) bool

	// Apply performs the correction.
	Apply func(m *Monitor, workerID string)
}

// staleCircuitFactor times the cooldown is how long an open circuit may sit
// before the monitor resets it for a fresh probe cycle.
const staleCircuitFactor = 4

func defaultOptimizationStrategies() []*OptimizationStrategy {
	return []*OptimizationStrategy{
		{
			Name:     "isolate_failing_worker",
			Priority: 1,
			Trigger: func(m *Monitor, workerID string, health HealthStatus, _ WorkerStats) bool {
				return health == HealthFailing &&
					m.circuits.Get(workerID).State() != engerrors.CircuitOpen
			},
			Apply: func(m *Monitor, workerID string) {
				breaker := m.circuits.Get(workerID)
				before := breaker.State()
				breaker.ForceOpen()
				m.announceCircuitChange(workerID, before, breaker.State())
				m.logger.Warn("optimization: isolated failing worker", "worker_id", workerID)
			},
		},
		{
			Name:     "reset_stale_circuit",
			Priority: 2,
			Trigger: func(m *Monitor, workerID string, _ HealthStatus, _ WorkerStats) bool {
				breaker := m.circuits.Get(workerID)
				if breaker.State() != engerrors.CircuitOpen {
					return false
				}
				cooldown := m.cfg.Breaker.CooldownDuration
				if cooldown <= 0 {
					cooldown = engerrors.DefaultCircuitBreakerConfig().CooldownDuration
				}
				return time.Since(breaker.OpenSince()) > staleCircuitFactor*cooldown
			},
			Apply: func(m *Monitor, workerID string) {
				m.ResetCircuit(workerID)
				m.logger.Info("optimization: reset stale circuit", "worker_id", workerID)
			},
		},
		{
			Name:     "flag_degrading_latency",
			Priority: 3,
			Trigger: func(_ *Monitor, _ string, health HealthStatus, stats WorkerStats) bool {
				return health == HealthDegraded && stats.Trend == TrendDegrading
			},
			Apply: func(m *Monitor, workerID string) {
				m.logger.Warn("optimization: worker latency degrading",
					"worker_id", workerID,
					"avg_latency", m.Stats(workerID, 0).AvgLatency)
			},
		},
	}
}

// EvaluateOnce runs one optimization cycle over every tracked worker. For
// each worker the highest-priority matching strategy is applied exactly once.
func (m *Monitor) EvaluateOnce() {
	for _, workerID := range m.workerIDs() {
		health := m.Health(workerID)
		stats := m.Stats(workerID, 0)

		for _, strategy := range m.strategies {
			if strategy.Trigger(m, workerID, health, stats) {
				m.logger.Debug("optimization strategy triggered",
					"strategy", strategy.Name, "worker_id", workerID, "health", health.String())
				strategy.Apply(m, workerID)
				break
			}
		}
	}
}
