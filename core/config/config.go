// Package config loads the engine's yaml configuration and supports live
// reload via file watching. Every section has defaults so an absent or
// partial file still yields a runnable configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kairoai/engine/core/coordinator"
	"github.com/kairoai/engine/core/monitor"
	"github.com/kairoai/engine/core/scheduler"
	"github.com/kairoai/engine/core/store"
)

// EngineConfig holds top-level engine behavior.
type EngineConfig struct {
	// DedupEnabled turns on in-flight duplicate-goal detection. Off by
	// default: identical requests normally schedule independently.
	DedupEnabled bool `yaml:"dedup_enabled"`

	// DedupCacheSize bounds the LRU of in-flight description hashes.
	DedupCacheSize int `yaml:"dedup_cache_size"`

	// MaintenanceInterval paces the background maintenance tick.
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`

	// GoalGracePeriod is how far past its estimated completion a goal may
	// run before maintenance force-fails it.
	GoalGracePeriod time.Duration `yaml:"goal_grace_period"`

	// EventBufferSize sizes the event bus buffer.
	EventBufferSize int `yaml:"event_buffer_size"`
}

// DefaultEngineConfig returns the default engine section.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DedupEnabled:        false,
		DedupCacheSize:      256,
		MaintenanceInterval: 30 * time.Second,
		GoalGracePeriod:     10 * time.Minute,
		EventBufferSize:     256,
	}
}

// StoreConfig selects and configures the knowledge/outcome store backend.
type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`

	SQLite store.SQLiteConfig `yaml:"sqlite"`
}

// DefaultStoreConfig returns the default store section.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver: "sqlite",
		SQLite: store.DefaultSQLiteConfig("data/engine.db"),
	}
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
}

// DefaultLoggingConfig returns the default logging section.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info"}
}

// Config is the full engine configuration.
type Config struct {
	Engine      EngineConfig       `yaml:"engine"`
	Scheduler   scheduler.Config   `yaml:"scheduler"`
	Coordinator coordinator.Config `yaml:"coordinator"`
	Monitor     monitor.Config     `yaml:"monitor"`
	Store       StoreConfig        `yaml:"store"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// Default returns the configuration with every section defaulted.
func Default() *Config {
	return &Config{
		Engine:      DefaultEngineConfig(),
		Scheduler:   scheduler.DefaultConfig(),
		Coordinator: coordinator.DefaultConfig(),
		Monitor:     monitor.DefaultConfig(),
		Store:       DefaultStoreConfig(),
		Logging:     DefaultLoggingConfig(),
	}
}

// Load reads a yaml file over the defaults. A missing file is not an error;
// the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
