package worker

import (
	"sync"

	"github.com/kairoai/engine/core/intent"
)

// Registry maps capabilities to registered workers. Registration order is
// preserved per capability: the first registered worker is the primary, the
// rest are alternates for recovery.
type Registry struct {
	mu           sync.RWMutex
	byID         map[string]Worker
	byCapability map[intent.Capability][]Worker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:         make(map[string]Worker),
		byCapability: make(map[intent.Capability][]Worker),
	}
}

// Register adds a worker under every capability it serves. Re-registering
// the same ID replaces the previous entry.
func (r *Registry) Register(w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[w.ID()]; exists {
		r.removeLocked(w.ID())
	}

	r.byID[w.ID()] = w
	for _, capability := range w.Capabilities() {
		r.byCapability[capability] = append(r.byCapability[capability], w)
	}
}

func (r *Registry) removeLocked(id string) {
	delete(r.byID, id)
	for capability, workers := range r.byCapability {
		kept := workers[:0]
		for _, w := range workers {
			if w.ID() != id {
				kept = append(kept, w)
			}
		}
		r.byCapability[capability] = kept
	}
}

// Get returns a worker by ID.
func (r *Registry) Get(id string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	return w, ok
}

// Primary returns the first registered worker for a capability.
func (r *Registry) Primary(capability intent.Capability) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workers := r.byCapability[capability]
	if len(workers) == 0 {
		return nil, false
	}
	return workers[0], true
}

// PrimaryID returns the ID of the first registered worker for a capability.
// It implements the scheduler's worker resolver for circuit checks on tasks
// scheduled by capability.
func (r *Registry) PrimaryID(capability intent.Capability) (string, bool) {
	w, ok := r.Primary(capability)
	if !ok {
		return "", false
	}
	return w.ID(), true
}

// Alternate returns a worker with overlapping capability other than the
// excluded one; used as a recovery strategy after retries are exhausted.
func (r *Registry) Alternate(capability intent.Capability, excludeID string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range r.byCapability[capability] {
		if w.ID() != excludeID {
			return w, true
		}
	}
	return nil, false
}

// ForCapability returns all workers serving a capability in registration order.
func (r *Registry) ForCapability(capability intent.Capability) []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workers := r.byCapability[capability]
	result := make([]Worker, len(workers))
	copy(result, workers)
	return result
}

// IDs returns every registered worker ID.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}
