package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig configures the sqlite-backed store.
type SQLiteConfig struct {
	Path        string        `yaml:"path"`
	MaxOpen     int           `yaml:"max_open"`
	MaxIdle     int           `yaml:"max_idle"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DefaultSQLiteConfig returns sensible pool defaults.
func DefaultSQLiteConfig(path string) SQLiteConfig {
	return SQLiteConfig{
		Path:        path,
		MaxOpen:     10,
		MaxIdle:     5,
		BusyTimeout: 30 * time.Second,
	}
}

// SQLiteStore persists engine records in a single sqlite database with WAL
// journaling and foreign keys enabled.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS metrics (
	id            TEXT PRIMARY KEY,
	worker_id     TEXT NOT NULL,
	task_id       TEXT NOT NULL,
	task_type     TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	ended_at      INTEGER NOT NULL,
	success       INTEGER NOT NULL,
	error         TEXT,
	cpu_time_ns   INTEGER NOT NULL DEFAULT 0,
	memory_bytes  INTEGER NOT NULL DEFAULT 0,
	network_calls INTEGER NOT NULL DEFAULT 0,
	quality_score REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_metrics_worker ON metrics(worker_id, ended_at DESC);

CREATE TABLE IF NOT EXISTS memory (
	id         TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL,
	goal_id    TEXT,
	kind       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_agent ON memory(agent_id, created_at DESC);

CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	payload       TEXT,
	priority      INTEGER NOT NULL DEFAULT 0,
	scheduled_for INTEGER NOT NULL,
	status        TEXT NOT NULL,
	worker_id     TEXT,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	completed_at  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON scheduled_tasks(status, created_at DESC);
`

// NewSQLiteStore opens (and migrates) the store at the configured path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=1",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveMetric inserts an immutable performance metric.
func (s *SQLiteStore) SaveMetric(ctx context.Context, m *PerformanceMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics
			(id, worker_id, task_id, task_type, started_at, ended_at, success, error,
			 cpu_time_ns, memory_bytes, network_calls, quality_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.WorkerID, m.TaskID, m.TaskType,
		m.StartedAt.UnixNano(), m.EndedAt.UnixNano(), boolToInt(m.Success), m.Error,
		int64(m.CPUTime), m.MemoryBytes, m.NetworkCalls, m.QualityScore,
	)
	if err != nil {
		return fmt.Errorf("save metric: %w", err)
	}
	return nil
}

// QueryMetrics returns the most recent metrics for a worker, newest first.
func (s *SQLiteStore) QueryMetrics(ctx context.Context, workerID string, limit int) ([]*PerformanceMetric, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, task_id, task_type, started_at, ended_at, success, error,
		       cpu_time_ns, memory_bytes, network_calls, quality_score
		FROM metrics WHERE worker_id = ? ORDER BY ended_at DESC LIMIT ?`,
		workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]*PerformanceMetric, 0, limit)
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func scanMetric(rows *sql.Rows) (*PerformanceMetric, error) {
	var m PerformanceMetric
	var startedAt, endedAt, cpuTime int64
	var success int

	err := rows.Scan(&m.ID, &m.WorkerID, &m.TaskID, &m.TaskType, &startedAt, &endedAt,
		&success, &m.Error, &cpuTime, &m.MemoryBytes, &m.NetworkCalls, &m.QualityScore)
	if err != nil {
		return nil, fmt.Errorf("scan metric: %w", err)
	}

	m.StartedAt = time.Unix(0, startedAt)
	m.EndedAt = time.Unix(0, endedAt)
	m.Success = success == 1
	m.CPUTime = time.Duration(cpuTime)
	return &m, nil
}

// SaveMemory inserts an agent memory entry.
func (s *SQLiteStore) SaveMemory(ctx context.Context, e *MemoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory (id, agent_id, goal_id, kind, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.AgentID, e.GoalID, e.Kind, e.Content, e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// QueryMemory returns memory entries for an agent, newest first.
func (s *SQLiteStore) QueryMemory(ctx context.Context, agentID string, filter MemoryFilter) ([]*MemoryEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, agent_id, goal_id, kind, content, created_at FROM memory WHERE agent_id = ?`
	args := []any{agentID}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	if filter.GoalID != "" {
		query += ` AND goal_id = ?`
		args = append(args, filter.GoalID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	defer rows.Close()

	entries := make([]*MemoryEntry, 0, limit)
	for rows.Next() {
		var e MemoryEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.AgentID, &e.GoalID, &e.Kind, &e.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		e.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SaveScheduledTask upserts a scheduled-task archive record.
func (s *SQLiteStore) SaveScheduledTask(ctx context.Context, r *TaskRecord) error {
	var completedAt any
	if !r.CompletedAt.IsZero() {
		completedAt = r.CompletedAt.UnixNano()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks
			(id, type, payload, priority, scheduled_for, status, worker_id, retry_count, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			worker_id = excluded.worker_id,
			retry_count = excluded.retry_count,
			completed_at = excluded.completed_at`,
		r.ID, r.Type, r.Payload, r.Priority, r.ScheduledFor.UnixNano(), r.Status,
		r.WorkerID, r.RetryCount, r.CreatedAt.UnixNano(), completedAt)
	if err != nil {
		return fmt.Errorf("save scheduled task: %w", err)
	}
	return nil
}

// QueryScheduledTasks returns archived tasks with the given status, newest
// first. An empty status returns all.
func (s *SQLiteStore) QueryScheduledTasks(ctx context.Context, status string, limit int) ([]*TaskRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, type, payload, priority, scheduled_for, status, worker_id, retry_count, created_at, completed_at
		FROM scheduled_tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scheduled tasks: %w", err)
	}
	defer rows.Close()

	records := make([]*TaskRecord, 0, limit)
	for rows.Next() {
		var r TaskRecord
		var scheduledFor, createdAt int64
		var completedAt sql.NullInt64
		err := rows.Scan(&r.ID, &r.Type, &r.Payload, &r.Priority, &scheduledFor, &r.Status,
			&r.WorkerID, &r.RetryCount, &createdAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled task: %w", err)
		}
		r.ScheduledFor = time.Unix(0, scheduledFor)
		r.CreatedAt = time.Unix(0, createdAt)
		if completedAt.Valid {
			r.CompletedAt = time.Unix(0, completedAt.Int64)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
