package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and as a fallback when no
// database path is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	metrics []*PerformanceMetric
	memory  []*MemoryEntry
	tasks   map[string]*TaskRecord
	order   []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*TaskRecord),
	}
}

// SaveMetric appends a metric.
func (s *MemoryStore) SaveMetric(_ context.Context, m *PerformanceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	s.metrics = append(s.metrics, &copied)
	return nil
}

// QueryMetrics returns the most recent metrics for a worker, newest first.
func (s *MemoryStore) QueryMetrics(_ context.Context, workerID string, limit int) ([]*PerformanceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]*PerformanceMetric, 0, limit)
	for i := len(s.metrics) - 1; i >= 0 && len(result) < limit; i-- {
		if s.metrics[i].WorkerID == workerID {
			copied := *s.metrics[i]
			result = append(result, &copied)
		}
	}
	return result, nil
}

// SaveMemory appends a memory entry.
func (s *MemoryStore) SaveMemory(_ context.Context, e *MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *e
	s.memory = append(s.memory, &copied)
	return nil
}

// QueryMemory returns matching memory entries, newest first.
func (s *MemoryStore) QueryMemory(_ context.Context, agentID string, filter MemoryFilter) ([]*MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	result := make([]*MemoryEntry, 0, limit)
	for i := len(s.memory) - 1; i >= 0 && len(result) < limit; i-- {
		e := s.memory[i]
		if e.AgentID != agentID {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.GoalID != "" && e.GoalID != filter.GoalID {
			continue
		}
		copied := *e
		result = append(result, &copied)
	}
	return result, nil
}

// SaveScheduledTask upserts a task record.
func (s *MemoryStore) SaveScheduledTask(_ context.Context, r *TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	copied := *r
	s.tasks[r.ID] = &copied
	return nil
}

// QueryScheduledTasks returns archived tasks with the given status, newest
// first. An empty status returns all.
func (s *MemoryStore) QueryScheduledTasks(_ context.Context, status string, limit int) ([]*TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]*TaskRecord, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(result) < limit; i-- {
		r := s.tasks[s.order[i]]
		if status != "" && r.Status != status {
			continue
		}
		copied := *r
		result = append(result, &copied)
	}
	return result, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
