package errors

import "sync"

// CircuitRegistry manages one circuit breaker per worker. Breakers are
// created lazily on first use with the registry's default configuration.
type CircuitRegistry struct {
	mu            sync.RWMutex
	breakers      map[string]*CircuitBreaker
	defaultConfig CircuitBreakerConfig
}

// NewCircuitRegistry creates a registry using the given defaults.
func NewCircuitRegistry(defaultConfig CircuitBreakerConfig) *CircuitRegistry {
	return &CircuitRegistry{
		breakers:      make(map[string]*CircuitBreaker),
		defaultConfig: defaultConfig,
	}
}

// Get retrieves or creates the breaker for a worker.
func (r *CircuitRegistry) Get(workerID string) *CircuitBreaker {
	r.mu.RLock()
	cb, exists := r.breakers[workerID]
	r.mu.RUnlock()

	if exists {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, exists = r.breakers[workerID]; exists {
		return cb
	}
	cb = NewCircuitBreaker(workerID, r.defaultConfig)
	r.breakers[workerID] = cb
	return cb
}

// Allow reports whether dispatch to the worker should proceed.
func (r *CircuitRegistry) Allow(workerID string) bool {
	return r.Get(workerID).Allow()
}

// RecordResult tracks an execution outcome for a worker.
func (r *CircuitRegistry) RecordResult(workerID string, success bool) {
	r.Get(workerID).RecordResult(success)
}

// Reset manually closes a worker's breaker.
func (r *CircuitRegistry) Reset(workerID string) {
	r.Get(workerID).Reset()
}

// States returns a snapshot of every tracked breaker's state.
func (r *CircuitRegistry) States() map[string]CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]CircuitState, len(r.breakers))
	for id, cb := range r.breakers {
		states[id] = cb.State()
	}
	return states
}
