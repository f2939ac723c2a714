// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Provide New() to build a Config with defaults and Load(ctx) to layer
//     file and environment sources on top.
//   - External errors are wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseDSN selects the relational store. Postgres URLs are
	// detected by scheme; anything else opens the embedded sqlite
	// driver (empty means a local file database).
	DatabaseDSN string `koanf:"database_dsn"`

	// DefaultWindowDays sizes the analysis window when the caller
	// supplies none.
	DefaultWindowDays int `koanf:"default_window_days"`

	// MaterializeWorkers sets the number of materialization workers.
	MaterializeWorkers int `koanf:"materialize_workers"`

	// MaterializeQueueSize bounds the in-memory materialization job queue.
	MaterializeQueueSize int `koanf:"materialize_queue_size"`

	// MaxSegments caps the number of segment buckets returned by
	// segment analysis. Bucketing itself is never truncated, only the
	// sorted output.
	MaxSegments int `koanf:"max_segments"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9090",
		DatabaseDSN:          "",
		DefaultWindowDays:    30,
		MaterializeWorkers:   runtime.NumCPU(),
		MaterializeQueueSize: 1024,
		MaxSegments:          50,
	}
}
