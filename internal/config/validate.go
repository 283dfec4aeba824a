package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Monitoring.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("monitoring: %w", err))
	}
	if err := c.Writer.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("writer: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := c.Retention.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retention: %w", err))
	}
	if err := c.Aggregation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("aggregation: %w", err))
	}
	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}
	if err := c.API.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("api: %w", err))
	}
	if err := c.Probe.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("probe: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the monitoring configuration.
func (c *MonitoringConfig) Validate() error {
	var errs []error

	if c.BufferCapacity <= 0 {
		errs = append(errs, errors.New("buffer_capacity must be positive"))
	}
	if c.SessionSweepIntervalMs <= 0 {
		errs = append(errs, errors.New("session_sweep_interval_ms must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the writer configuration.
func (c *WriterConfig) Validate() error {
	var errs []error

	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be positive"))
	}
	if c.FlushIntervalMs <= 0 {
		errs = append(errs, errors.New("flush_interval_ms must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries must not be negative"))
	}
	if c.RetryBackoffMs <= 0 {
		errs = append(errs, errors.New("retry_backoff_ms must be positive"))
	}
	if c.MaxBackoffMs < c.RetryBackoffMs {
		errs = append(errs, errors.New("max_backoff_ms must not be below retry_backoff_ms"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	var errs []error

	if c.Path == "" {
		errs = append(errs, errors.New("path is required"))
	}
	if c.ReadConns <= 0 {
		errs = append(errs, errors.New("read_conns must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the retention configuration.
//
// max_age_ms of zero is valid: it means "retain nothing" and a cleanup cycle
// deletes every stored row. Turning retention off is done via enabled.
func (c *RetentionConfig) Validate() error {
	var errs []error

	if c.IntervalMs <= 0 {
		errs = append(errs, errors.New("interval_ms must be positive"))
	}
	if c.MaxAgeMs < 0 {
		errs = append(errs, errors.New("max_age_ms must not be negative"))
	}
	if c.MaxCount < 0 {
		errs = append(errs, errors.New("max_count must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the aggregation configuration.
func (c *AggregationConfig) Validate() error {
	var errs []error

	if c.ExactRowLimit <= 0 {
		errs = append(errs, errors.New("exact_row_limit must be positive"))
	}
	if c.SketchAccuracy <= 0 || c.SketchAccuracy >= 1 {
		errs = append(errs, errors.New("sketch_accuracy must be in (0, 1)"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.DefaultLimit <= 0 {
		errs = append(errs, errors.New("default_limit must be positive"))
	}
	if c.MaxLimit < c.DefaultLimit {
		errs = append(errs, errors.New("max_limit must not be below default_limit"))
	}
	if c.DefaultWindowMs <= 0 {
		errs = append(errs, errors.New("default_window_ms must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the API configuration.
func (c *APIConfig) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.ReadTimeoutMs <= 0 {
		errs = append(errs, errors.New("read_timeout_ms must be positive"))
	}
	if c.WriteTimeoutMs <= 0 {
		errs = append(errs, errors.New("write_timeout_ms must be positive"))
	}
	if c.ShutdownTimeoutMs <= 0 {
		errs = append(errs, errors.New("shutdown_timeout_ms must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the probe configuration.
func (c *ProbeConfig) Validate() error {
	var errs []error

	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.MinDelayMs < 0 {
		errs = append(errs, errors.New("min_delay_ms must not be negative"))
	}
	if c.MaxDelayMs < c.MinDelayMs {
		errs = append(errs, errors.New("max_delay_ms must not be below min_delay_ms"))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, errors.New("max_iterations must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
