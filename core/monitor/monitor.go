// Package monitor aggregates per-worker execution metrics into health status
// and latency trend, feeds per-worker circuit breakers, and applies
// optimization strategies against the rolling window.
package monitor

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	engerrors "github.com/kairoai/engine/core/errors"
	"github.com/kairoai/engine/core/events"
	"github.com/kairoai/engine/core/planner"
	"github.com/kairoai/engine/core/store"
)

// Config holds the monitor's tunables.
type Config struct {
	// WindowSize bounds the rolling per-worker metrics window.
	WindowSize int `yaml:"window_size"`

	// LatencyThreshold marks a worker degraded above it and failing above
	// twice it.
	LatencyThreshold time.Duration `yaml:"latency_threshold"`

	// ErrorRateThreshold marks a worker degraded above it. The failing
	// bound is fixed at 50%.
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`

	// EvaluationInterval paces the optimization cycle.
	EvaluationInterval time.Duration `yaml:"evaluation_interval"`

	// Breaker configures the per-worker circuit breakers.
	Breaker engerrors.CircuitBreakerConfig `yaml:"breaker"`
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:         50,
		LatencyThreshold:   30 * time.Second,
		ErrorRateThreshold: 0.2,
		EvaluationInterval: 30 * time.Second,
		Breaker:            engerrors.DefaultCircuitBreakerConfig(),
	}
}

// failingErrorRate is the fixed error-rate bound above which a worker is
// failing regardless of the configured degraded threshold.
const failingErrorRate = 0.5

// workerState is one worker's rolling window. Each worker has its own lock
// so concurrent completions for different workers never contend.
type workerState struct {
	mu      sync.Mutex
	metrics []*store.PerformanceMetric
}

// Monitor derives worker health from recorded metrics. Health is never
// stored: every query recomputes it from the current window.
type Monitor struct {
	mu      sync.RWMutex
	workers map[string]*workerState

	cfg        Config
	circuits   *engerrors.CircuitRegistry
	strategies []*OptimizationStrategy
	catalog    *planner.Catalog
	bus        *events.Bus
	logger     *slog.Logger

	done    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New creates a monitor. The catalog and bus may be nil.
func New(cfg Config, catalog *planner.Catalog, bus *events.Bus, logger *slog.Logger) *Monitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.LatencyThreshold <= 0 {
		cfg.LatencyThreshold = DefaultConfig().LatencyThreshold
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = DefaultConfig().ErrorRateThreshold
	}
	if cfg.EvaluationInterval <= 0 {
		cfg.EvaluationInterval = DefaultConfig().EvaluationInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	strategies := defaultOptimizationStrategies()
	sort.SliceStable(strategies, func(i, j int) bool {
		return strategies[i].Priority < strategies[j].Priority
	})
	return &Monitor{
		workers:    make(map[string]*workerState),
		cfg:        cfg,
		circuits:   engerrors.NewCircuitRegistry(cfg.Breaker),
		strategies: strategies,
		catalog:    catalog,
		bus:        bus,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Record folds one execution metric into the worker's window and feeds the
// circuit breaker. Circuit state changes are announced on the bus.
func (m *Monitor) Record(metric *store.PerformanceMetric) {
	if metric == nil || metric.WorkerID == "" {
		return
	}

	state := m.stateFor(metric.WorkerID)
	state.mu.Lock()
	state.metrics = append(state.metrics, metric)
	if excess := len(state.metrics) - m.cfg.WindowSize; excess > 0 {
		state.metrics = state.metrics[excess:]
	}
	state.mu.Unlock()

	breaker := m.circuits.Get(metric.WorkerID)
	before := breaker.State()
	breaker.RecordResult(metric.Success)
	m.announceCircuitChange(metric.WorkerID, before, breaker.State())
}

func (m *Monitor) stateFor(workerID string) *workerState {
	m.mu.RLock()
	state, ok := m.workers[workerID]
	m.mu.RUnlock()
	if ok {
		return state
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok = m.workers[workerID]; ok {
		return state
	}
	state = &workerState{}
	m.workers[workerID] = state
	return state
}

// Health recomputes the worker's classification from its current window.
func (m *Monitor) Health(workerID string) HealthStatus {
	if m.circuits.Get(workerID).State() == engerrors.CircuitOpen {
		return HealthCrashed
	}

	stats := m.Stats(workerID, 0)
	if stats.Samples == 0 {
		return HealthHealthy
	}

	errorRate := 1 - stats.SuccessRate
	switch {
	case errorRate > failingErrorRate || stats.AvgLatency > 2*m.cfg.LatencyThreshold:
		return HealthFailing
	case errorRate > m.cfg.ErrorRateThreshold || stats.AvgLatency > m.cfg.LatencyThreshold:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// Stats summarizes the worker's window. A zero window means every retained
// metric; otherwise only metrics that ended within the window count.
func (m *Monitor) Stats(workerID string, window time.Duration) WorkerStats {
	state := m.stateFor(workerID)
	state.mu.Lock()
	defer state.mu.Unlock()

	var selected []*store.PerformanceMetric
	if window <= 0 {
		selected = state.metrics
	} else {
		cutoff := time.Now().Add(-window)
		for _, metric := range state.metrics {
			if metric.EndedAt.After(cutoff) {
				selected = append(selected, metric)
			}
		}
	}

	stats := WorkerStats{WorkerID: workerID, Samples: len(selected)}
	if len(selected) == 0 {
		return stats
	}

	successes := 0
	var totalLatency time.Duration
	for _, metric := range selected {
		if metric.Success {
			successes++
		}
		totalLatency += metric.Latency()
	}
	stats.SuccessRate = float64(successes) / float64(len(selected))
	stats.AvgLatency = totalLatency / time.Duration(len(selected))
	stats.Trend = latencyTrend(selected)
	return stats
}

// trendDeadZone is the fraction around parity counted as stable.
const trendDeadZone = 0.10

// latencyTrend compares mean latency of the newest half of the window
// against the oldest half. Moves within the dead zone are stable.
func latencyTrend(metrics []*store.PerformanceMetric) Trend {
	if len(metrics) < 4 {
		return TrendStable
	}

	mid := len(metrics) / 2
	older := meanLatency(metrics[:mid])
	newer := meanLatency(metrics[mid:])
	if older <= 0 {
		return TrendStable
	}

	ratio := float64(newer) / float64(older)
	switch {
	case ratio > 1+trendDeadZone:
		return TrendDegrading
	case ratio < 1-trendDeadZone:
		return TrendImproving
	default:
		return TrendStable
	}
}

func meanLatency(metrics []*store.PerformanceMetric) time.Duration {
	if len(metrics) == 0 {
		return 0
	}
	var total time.Duration
	for _, metric := range metrics {
		total += metric.Latency()
	}
	return total / time.Duration(len(metrics))
}

// =============================================================================
// Circuit Surface
// =============================================================================

// Allow implements the scheduler's admission gate: a CircuitOpenError while
// the worker's breaker refuses dispatch, nil otherwise.
func (m *Monitor) Allow(workerID string) error {
	breaker := m.circuits.Get(workerID)
	before := breaker.State()
	allowed := breaker.Allow()
	m.announceCircuitChange(workerID, before, breaker.State())
	if allowed {
		return nil
	}
	return breaker.Deny()
}

// ResetCircuit manually closes a worker's breaker.
func (m *Monitor) ResetCircuit(workerID string) {
	breaker := m.circuits.Get(workerID)
	before := breaker.State()
	breaker.Reset()
	m.announceCircuitChange(workerID, before, breaker.State())
}

// CircuitStates snapshots every tracked breaker.
func (m *Monitor) CircuitStates() map[string]engerrors.CircuitState {
	return m.circuits.States()
}

func (m *Monitor) announceCircuitChange(workerID string, before, after engerrors.CircuitState) {
	if before == after || m.bus == nil {
		return
	}
	switch after {
	case engerrors.CircuitOpen:
		m.bus.Publish(&events.Event{Type: events.EventCircuitOpened, WorkerID: workerID})
	case engerrors.CircuitClosed:
		m.bus.Publish(&events.Event{Type: events.EventCircuitClosed, WorkerID: workerID})
	}
}

// =============================================================================
// Strategy Feedback
// =============================================================================

// RecordStrategyOutcome folds a goal outcome into the named planning
// strategy's rolling success rate.
func (m *Monitor) RecordStrategyOutcome(name string, success bool) {
	if m.catalog == nil {
		return
	}
	if strategy, ok := m.catalog.Get(name); ok {
		strategy.RecordOutcome(success)
	}
}

// =============================================================================
// Evaluation Loop
// =============================================================================

// Start launches the periodic optimization cycle.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.EvaluationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.EvaluateOnce()
			case <-m.done:
				return
			}
		}
	}()
}

// Stop halts the optimization cycle.
func (m *Monitor) Stop() {
	m.mu.Lock()
	started := m.started
	m.started = false
	m.mu.Unlock()
	if !started {
		return
	}
	close(m.done)
	m.wg.Wait()
}

// workerIDs snapshots the tracked worker set.
func (m *Monitor) workerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	return ids
}
