// Package config defines the pulse daemon configuration.
//
// Configuration is a YAML file unmarshaled over DefaultConfig, then validated.
// Durations are plain *_ms integer fields so the file format stays obvious;
// accessor methods convert them to time.Duration for callers.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	rootdefaults "github.com/xtxerr/pulse/config"
)

// Config represents the complete pulse configuration.
type Config struct {
	// Monitoring configures the ingestion side: buffer and admission.
	Monitoring MonitoringConfig `yaml:"monitoring"`

	// Writer configures the batch writer.
	Writer WriterConfig `yaml:"writer"`

	// Storage configures the durable event store.
	Storage StorageConfig `yaml:"storage"`

	// Retention configures asynchronous cleanup of stored events.
	Retention RetentionConfig `yaml:"retention"`

	// Aggregation configures the statistics engine.
	Aggregation AggregationConfig `yaml:"aggregation"`

	// Query configures the read-only query service.
	Query QueryConfig `yaml:"query"`

	// API configures the HTTP surface.
	API APIConfig `yaml:"api"`

	// Probe configures the synthetic load injector.
	Probe ProbeConfig `yaml:"probe"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`
}

// MonitoringConfig configures the ingestion side.
type MonitoringConfig struct {
	// BufferCapacity is the bounded ingestion buffer size in events.
	BufferCapacity int `yaml:"buffer_capacity"`

	// RequireSession gates sampling on an active monitoring session.
	// When false the pipeline measures continuously.
	RequireSession bool `yaml:"require_session"`

	// SessionSweepIntervalMs is how often expired sessions are swept.
	SessionSweepIntervalMs int64 `yaml:"session_sweep_interval_ms"`
}

// WriterConfig configures the batch writer.
type WriterConfig struct {
	// BatchSize triggers a drain when this many events are buffered.
	BatchSize int `yaml:"batch_size"`

	// FlushIntervalMs bounds how long events wait un-persisted.
	FlushIntervalMs int64 `yaml:"flush_interval_ms"`

	// MaxRetries is the retry budget for a failing batch commit.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoffMs is the initial commit retry backoff; doubles per
	// attempt up to MaxBackoffMs.
	RetryBackoffMs int64 `yaml:"retry_backoff_ms"`

	// MaxBackoffMs caps the exponential backoff.
	MaxBackoffMs int64 `yaml:"max_backoff_ms"`
}

// StorageConfig configures the durable event store.
type StorageConfig struct {
	// Path is the DuckDB database file. ":memory:" is accepted for tests.
	Path string `yaml:"path"`

	// ReadConns is the read-side connection pool size.
	ReadConns int `yaml:"read_conns"`

	// ConnMaxLifetimeMin recycles pooled connections.
	ConnMaxLifetimeMin int64 `yaml:"conn_max_lifetime_min"`
}

// RetentionConfig configures asynchronous cleanup.
type RetentionConfig struct {
	// Enabled turns the retention task on.
	Enabled bool `yaml:"enabled"`

	// IntervalMs is the cleanup cycle interval.
	IntervalMs int64 `yaml:"interval_ms"`

	// MaxAgeMs deletes events older than this. Zero means retain nothing;
	// use Enabled to turn retention off entirely.
	MaxAgeMs int64 `yaml:"max_age_ms"`

	// MaxCount caps stored rows, oldest-first eviction. Zero disables the cap.
	MaxCount int64 `yaml:"max_count"`
}

// AggregationConfig configures the statistics engine.
type AggregationConfig struct {
	// ExactRowLimit is the window row count up to which percentiles are
	// exact (nearest-rank). Above it the engine uses the histogram strategy.
	ExactRowLimit int64 `yaml:"exact_row_limit"`

	// SketchAccuracy is the DDSketch relative accuracy (0.01 = 1% error).
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
}

// QueryConfig configures the read-only query service.
type QueryConfig struct {
	// DefaultLimit is the raw-events page size when none is requested.
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit bounds a single raw-events response.
	MaxLimit int `yaml:"max_limit"`

	// DefaultWindowMs is the summary window when none is requested.
	DefaultWindowMs int64 `yaml:"default_window_ms"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// ReadTimeoutMs bounds request reading.
	ReadTimeoutMs int64 `yaml:"read_timeout_ms"`

	// WriteTimeoutMs bounds response writing; exports stream rows, so keep
	// this generous.
	WriteTimeoutMs int64 `yaml:"write_timeout_ms"`

	// ShutdownTimeoutMs is the graceful shutdown grace period.
	ShutdownTimeoutMs int64 `yaml:"shutdown_timeout_ms"`
}

// ProbeConfig configures the synthetic load injector.
type ProbeConfig struct {
	// Workers is the number of concurrent synthetic operations.
	Workers int `yaml:"workers"`

	// MinDelayMs and MaxDelayMs bound the simulated operation duration.
	MinDelayMs int64 `yaml:"min_delay_ms"`
	MaxDelayMs int64 `yaml:"max_delay_ms"`

	// MaxIterations bounds a single probe request.
	MaxIterations int `yaml:"max_iterations"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches output from text to JSON.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Monitoring: MonitoringConfig{
			BufferCapacity:         rootdefaults.DefaultBufferCapacity,
			RequireSession:         false,
			SessionSweepIntervalMs: rootdefaults.DefaultSessionSweepInterval.Milliseconds(),
		},
		Writer: WriterConfig{
			BatchSize:       rootdefaults.DefaultBatchSize,
			FlushIntervalMs: rootdefaults.DefaultFlushInterval.Milliseconds(),
			MaxRetries:      rootdefaults.DefaultCommitRetries,
			RetryBackoffMs:  rootdefaults.DefaultRetryBackoff.Milliseconds(),
			MaxBackoffMs:    rootdefaults.DefaultMaxBackoff.Milliseconds(),
		},
		Storage: StorageConfig{
			Path:               rootdefaults.DefaultStorePath,
			ReadConns:          rootdefaults.DefaultReadConns,
			ConnMaxLifetimeMin: int64(rootdefaults.DefaultConnMaxLifetime.Minutes()),
		},
		Retention: RetentionConfig{
			Enabled:    true,
			IntervalMs: rootdefaults.DefaultRetentionInterval.Milliseconds(),
			MaxAgeMs:   rootdefaults.DefaultRetentionMaxAge.Milliseconds(),
			MaxCount:   rootdefaults.DefaultRetentionMaxCount,
		},
		Aggregation: AggregationConfig{
			ExactRowLimit:  rootdefaults.DefaultExactRowLimit,
			SketchAccuracy: rootdefaults.DefaultSketchAccuracy,
		},
		Query: QueryConfig{
			DefaultLimit:    rootdefaults.DefaultQueryLimit,
			MaxLimit:        rootdefaults.DefaultMaxQueryLimit,
			DefaultWindowMs: rootdefaults.DefaultQueryWindow.Milliseconds(),
		},
		API: APIConfig{
			Listen:            rootdefaults.DefaultListenAddress,
			ReadTimeoutMs:     rootdefaults.DefaultReadTimeout.Milliseconds(),
			WriteTimeoutMs:    rootdefaults.DefaultWriteTimeout.Milliseconds(),
			ShutdownTimeoutMs: rootdefaults.DefaultShutdownTimeout.Milliseconds(),
		},
		Probe: ProbeConfig{
			Workers:       rootdefaults.DefaultProbeWorkers,
			MinDelayMs:    rootdefaults.DefaultProbeMinDelay.Milliseconds(),
			MaxDelayMs:    rootdefaults.DefaultProbeMaxDelay.Milliseconds(),
			MaxIterations: rootdefaults.DefaultProbeMaxIterations,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// =============================================================================
// Duration accessors
// =============================================================================

// SessionSweepInterval returns the session sweep interval.
func (c *MonitoringConfig) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepIntervalMs) * time.Millisecond
}

// FlushInterval returns the writer flush interval.
func (c *WriterConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// RetryBackoff returns the initial commit retry backoff.
func (c *WriterConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// MaxBackoff returns the backoff cap.
func (c *WriterConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

// ConnMaxLifetime returns the pooled connection lifetime.
func (c *StorageConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMin) * time.Minute
}

// Interval returns the retention cycle interval.
func (c *RetentionConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// MaxAge returns the retention age bound.
func (c *RetentionConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMs) * time.Millisecond
}

// DefaultWindow returns the default summary window.
func (c *QueryConfig) DefaultWindow() time.Duration {
	return time.Duration(c.DefaultWindowMs) * time.Millisecond
}

// ReadTimeout returns the HTTP read timeout.
func (c *APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the HTTP write timeout.
func (c *APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown grace period.
func (c *APIConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// MinDelay returns the probe delay band lower bound.
func (c *ProbeConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the probe delay band upper bound.
func (c *ProbeConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}
