// Package config provides configuration defaults and utilities
// for the pulse application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via pulse.yaml.
package config

import "time"

// =============================================================================
// Ingestion Defaults
// =============================================================================

const (
	// DefaultBufferCapacity is the bounded ingestion buffer size in events.
	// When full, the oldest buffered event is evicted to admit the new one.
	// Override via config: monitoring.buffer_capacity
	DefaultBufferCapacity = 10000

	// DefaultBatchSize is the number of buffered events that triggers a drain.
	// Override via config: writer.batch_size
	DefaultBatchSize = 500

	// DefaultFlushInterval is the maximum time un-persisted events wait in the
	// buffer before the writer drains it regardless of batch size.
	// Override via config: writer.flush_interval_ms
	DefaultFlushInterval = 250 * time.Millisecond

	// DefaultCommitRetries is the number of retry attempts for a failed batch
	// commit before the batch is discarded and counted as lost.
	// Override via config: writer.max_retries
	DefaultCommitRetries = 5

	// DefaultRetryBackoff is the initial backoff after a failed commit.
	// Doubles per attempt up to DefaultMaxBackoff.
	// Override via config: writer.retry_backoff_ms
	DefaultRetryBackoff = 50 * time.Millisecond

	// DefaultMaxBackoff caps the exponential commit retry backoff.
	// Override via config: writer.max_backoff_ms
	DefaultMaxBackoff = 2 * time.Second
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultStorePath is the DuckDB database file.
	// Override via config: storage.path
	DefaultStorePath = "pulse.duckdb"

	// DefaultReadConns is the connection pool size for the read side.
	// The writer holds one additional dedicated connection outside this pool.
	// Override via config: storage.read_conns
	DefaultReadConns = 4

	// DefaultConnMaxLifetime recycles pooled connections after this interval.
	// Override via config: storage.conn_max_lifetime_min
	DefaultConnMaxLifetime = 30 * time.Minute
)

// =============================================================================
// Retention Defaults
// =============================================================================

const (
	// DefaultRetentionInterval is how often the retention task runs.
	// Override via config: retention.interval_ms
	DefaultRetentionInterval = time.Minute

	// DefaultRetentionMaxAge is the age beyond which events are deleted.
	// Zero with retention enabled means "retain nothing"; disable retention
	// via retention.enabled instead.
	// Override via config: retention.max_age_ms
	DefaultRetentionMaxAge = 30 * 24 * time.Hour

	// DefaultRetentionMaxCount caps stored rows, oldest evicted first.
	// Zero disables the row cap.
	// Override via config: retention.max_count
	DefaultRetentionMaxCount = 0
)

// =============================================================================
// Aggregation Defaults
// =============================================================================

const (
	// DefaultExactRowLimit is the window row count up to which percentiles are
	// computed exactly (nearest-rank over the sorted set). Above it the engine
	// switches to the DDSketch histogram strategy.
	// Override via config: aggregation.exact_row_limit
	DefaultExactRowLimit = 1_000_000

	// DefaultSketchAccuracy is the DDSketch relative accuracy for the
	// histogram strategy. 0.01 = 1% relative error on quantiles.
	// Override via config: aggregation.sketch_accuracy
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultQueryLimit is the raw-events page size when none is requested.
	// Override via config: query.default_limit
	DefaultQueryLimit = 100

	// DefaultMaxQueryLimit bounds a single raw-events response.
	// Override via config: query.max_limit
	DefaultMaxQueryLimit = 10000

	// DefaultQueryWindow is the summary window when none is requested.
	// Override via config: query.default_window_ms
	DefaultQueryWindow = 15 * time.Minute
)

// =============================================================================
// API Defaults
// =============================================================================

const (
	// DefaultListenAddress is the HTTP API listen address.
	// Override via config: api.listen
	DefaultListenAddress = ":3030"

	// DefaultReadTimeout bounds request reading.
	// Override via config: api.read_timeout_ms
	DefaultReadTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds response writing. Exports stream rows, so
	// this is deliberately generous.
	// Override via config: api.write_timeout_ms
	DefaultWriteTimeout = 60 * time.Second

	// DefaultShutdownTimeout is how long in-flight requests get to finish
	// during graceful shutdown.
	// Override via config: api.shutdown_timeout_ms
	DefaultShutdownTimeout = 5 * time.Second
)

// =============================================================================
// Probe Defaults
// =============================================================================

const (
	// DefaultProbeWorkers is the number of concurrent synthetic operations.
	// Override via config: probe.workers
	DefaultProbeWorkers = 4

	// DefaultProbeMinDelay and DefaultProbeMaxDelay bound the simulated
	// operation duration band.
	// Override via config: probe.min_delay_ms / probe.max_delay_ms
	DefaultProbeMinDelay = 10 * time.Millisecond
	DefaultProbeMaxDelay = 50 * time.Millisecond

	// DefaultProbeMaxIterations bounds a single probe request.
	// Override via config: probe.max_iterations
	DefaultProbeMaxIterations = 10000
)

// =============================================================================
// Session Defaults
// =============================================================================

const (
	// DefaultSessionSweepInterval is how often expired sessions are swept.
	// Override via config: monitoring.session_sweep_interval_ms
	DefaultSessionSweepInterval = time.Second
)
