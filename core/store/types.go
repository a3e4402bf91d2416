// Package store persists execution outcomes, agent memory, and the scheduled
// task archive. All operations are possibly-failing I/O; callers degrade
// gracefully (log and continue) when the store is unavailable.
package store

import (
	"context"
	"time"
)

// PerformanceMetric is one record per completed execution attempt.
// Immutable once written.
type PerformanceMetric struct {
	ID           string        `json:"id"`
	WorkerID     string        `json:"worker_id"`
	TaskID       string        `json:"task_id"`
	TaskType     string        `json:"task_type"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	CPUTime      time.Duration `json:"cpu_time"`
	MemoryBytes  int64         `json:"memory_bytes"`
	NetworkCalls int           `json:"network_calls"`
	QualityScore float64       `json:"quality_score"`
}

// Latency returns the wall-clock duration of the attempt.
func (m *PerformanceMetric) Latency() time.Duration {
	return m.EndedAt.Sub(m.StartedAt)
}

// MemoryEntry is a durable agent memory record consulted by future planning.
type MemoryEntry struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	GoalID    string    `json:"goal_id,omitempty"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryFilter narrows memory queries.
type MemoryFilter struct {
	Kind   string
	GoalID string
	Limit  int
}

// TaskRecord is an archived scheduled-task entry.
type TaskRecord struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Payload      string    `json:"payload,omitempty"`
	Priority     int       `json:"priority"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Status       string    `json:"status"`
	WorkerID     string    `json:"worker_id,omitempty"`
	RetryCount   int       `json:"retry_count"`
	CreatedAt    time.Time `json:"created_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
}

// Store is the knowledge/outcome collaborator interface.
type Store interface {
	SaveMetric(ctx context.Context, metric *PerformanceMetric) error
	QueryMetrics(ctx context.Context, workerID string, limit int) ([]*PerformanceMetric, error)

	SaveMemory(ctx context.Context, entry *MemoryEntry) error
	QueryMemory(ctx context.Context, agentID string, filter MemoryFilter) ([]*MemoryEntry, error)

	SaveScheduledTask(ctx context.Context, record *TaskRecord) error
	QueryScheduledTasks(ctx context.Context, status string, limit int) ([]*TaskRecord, error)

	Close() error
}
