package errors

import (
	"sync"
	"time"
)

// CircuitState represents the state of a worker's circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows dispatch to proceed normally.
	CircuitClosed CircuitState = iota

	// CircuitOpen blocks dispatch during cooldown.
	CircuitOpen

	// CircuitHalfOpen allows a single probe task to test recovery.
	CircuitHalfOpen
)

var circuitStateNames = map[CircuitState]string{
	CircuitClosed:   "closed",
	CircuitOpen:     "open",
	CircuitHalfOpen: "half_open",
}

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	if name, ok := circuitStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// CircuitBreakerConfig configures per-worker circuit breaking.
type CircuitBreakerConfig struct {
	// ConsecutiveFailures is the trip threshold.
	ConsecutiveFailures int `yaml:"consecutive_failures"`

	// CooldownDuration is the time an open circuit waits before allowing a probe.
	CooldownDuration time.Duration `yaml:"cooldown_duration"`

	// SuccessThreshold is the number of probe successes needed to close.
	SuccessThreshold int `yaml:"success_threshold"`
}

// DefaultCircuitBreakerConfig returns the default configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		ConsecutiveFailures: 3,
		CooldownDuration:    30 * time.Second,
		SuccessThreshold:    1,
	}
}

// CircuitBreaker guards a single worker against repeated consecutive failures.
// A tripped breaker rejects dispatch until a manual reset or until a probe
// task succeeds after the cooldown.
type CircuitBreaker struct {
	mu              sync.RWMutex
	workerID        string
	config          CircuitBreakerConfig
	state           CircuitState
	failures        int
	probeSuccesses  int
	lastStateChange time.Time
}

// NewCircuitBreaker creates a closed breaker for a worker.
func NewCircuitBreaker(workerID string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.ConsecutiveFailures <= 0 {
		config.ConsecutiveFailures = 3
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		workerID:        workerID,
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// RecordResult tracks the outcome of one execution attempt.
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.recordSuccess()
		return
	}
	cb.recordFailure()
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.failures = 0

	if cb.state == CircuitHalfOpen {
		cb.probeSuccesses++
		if cb.probeSuccesses >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failures++
	cb.probeSuccesses = 0

	// A failed probe re-opens immediately.
	if cb.state == CircuitHalfOpen {
		cb.transitionTo(CircuitOpen)
		return
	}

	if cb.state == CircuitClosed && cb.failures >= cb.config.ConsecutiveFailures {
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	cb.state = state
	cb.lastStateChange = time.Now()
	if state == CircuitClosed {
		cb.failures = 0
		cb.probeSuccesses = 0
	}
	if state == CircuitHalfOpen {
		cb.probeSuccesses = 0
	}
}

// Allow reports whether dispatch to the worker should proceed. An open
// circuit past its cooldown transitions to half-open and admits one probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Since(cb.lastStateChange) < cb.config.CooldownDuration {
			return false
		}
		cb.transitionTo(CircuitHalfOpen)
		return true
	default:
		return true
	}
}

// Deny returns a CircuitOpenError describing the blocked worker.
func (cb *CircuitBreaker) Deny() *CircuitOpenError {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return &CircuitOpenError{WorkerID: cb.workerID, Since: cb.lastStateChange}
}

// ForceOpen trips the breaker regardless of the failure count.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		cb.transitionTo(CircuitOpen)
	}
}

// OpenSince returns when the breaker last changed state.
func (cb *CircuitBreaker) OpenSince() time.Time {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.lastStateChange
}

// Reset manually closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed)
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// WorkerID returns the guarded worker's identifier.
func (cb *CircuitBreaker) WorkerID() string {
	return cb.workerID
}
