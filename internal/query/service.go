// Package query provides the read-only query surface over committed state.
//
// Every answer reflects durable data only: queries go through the store's
// read pool and observe nothing of the ingestion buffer, and they never
// take the commit lock. Identical concurrent summaries collapse into one
// computation via singleflight.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/logging"
	"github.com/xtxerr/pulse/internal/metrics"
	"github.com/xtxerr/pulse/internal/store"
)

// StoreReader is the read-only store surface the service depends on.
type StoreReader interface {
	GetEvents(ctx context.Context, f event.Filter, limit int) ([]event.LatencyEvent, error)
	CountEvents(ctx context.Context, f event.Filter) (int64, error)
	CountByComponent(ctx context.Context) ([]store.ComponentCount, error)
	TimeBounds(ctx context.Context) (oldestUs, newestUs int64, err error)
	Health(ctx context.Context) error
}

// Summarizer computes aggregate snapshots.
type Summarizer interface {
	Summarize(ctx context.Context, f event.Filter) (event.AggregateSnapshot, error)
	SummarizeAll(ctx context.Context, sinceUs, untilUs int64) ([]event.AggregateSnapshot, error)
}

// CommitTracker reports the last successful batch commit.
type CommitTracker interface {
	LastCommitUs() int64
}

// Service answers read-only queries.
type Service struct {
	cfg      config.QueryConfig
	store    StoreReader
	engine   Summarizer
	commits  CommitTracker
	counters *metrics.Counters
	log      *slog.Logger
	now      func() time.Time

	// Singleflight collapses identical concurrent summary computations.
	group singleflight.Group

	// Statistics
	queriesExecuted atomic.Int64
	rowsReturned    atomic.Int64
}

// New creates a query service.
func New(cfg config.QueryConfig, st StoreReader, engine Summarizer, commits CommitTracker, counters *metrics.Counters) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		engine:   engine,
		commits:  commits,
		counters: counters,
		log:      logging.Component("query"),
		now:      time.Now,
	}
}

// =============================================================================
// Raw Events
// =============================================================================

// Events returns committed events matching f, newest first. A non-positive
// limit uses the configured default; anything above the maximum is clamped.
func (s *Service) Events(ctx context.Context, f event.Filter, limit int) ([]event.LatencyEvent, error) {
	if err := f.Validate(); err != nil {
		s.counters.IncQueryFailures()
		return nil, err
	}

	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	events, err := s.store.GetEvents(ctx, f, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}

	s.queriesExecuted.Add(1)
	s.rowsReturned.Add(int64(len(events)))
	return events, nil
}

// Count returns the number of committed events matching f.
func (s *Service) Count(ctx context.Context, f event.Filter) (int64, error) {
	if err := f.Validate(); err != nil {
		s.counters.IncQueryFailures()
		return 0, err
	}

	count, err := s.store.CountEvents(ctx, f)
	if err != nil {
		return 0, errors.Wrap(err, "count events")
	}

	s.queriesExecuted.Add(1)
	return count, nil
}

// =============================================================================
// Summaries
// =============================================================================

// Summary computes windowed statistics for one component, or for all
// components together when f.Component is empty. An unspecified window
// defaults to the configured trailing window ending now.
func (s *Service) Summary(ctx context.Context, f event.Filter) (event.AggregateSnapshot, error) {
	f = s.applyDefaultWindow(f)

	if err := f.Validate(); err != nil {
		s.counters.IncQueryFailures()
		return event.AggregateSnapshot{}, err
	}

	key := fmt.Sprintf("summary/%s/%d/%d", f.Component, f.SinceUs, f.UntilUs)
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.engine.Summarize(ctx, f)
	})
	if err != nil {
		return event.AggregateSnapshot{}, err
	}

	s.queriesExecuted.Add(1)
	return result.(event.AggregateSnapshot), nil
}

// SummaryAll computes one snapshot per component over the same window.
func (s *Service) SummaryAll(ctx context.Context, sinceUs, untilUs int64) ([]event.AggregateSnapshot, error) {
	f := s.applyDefaultWindow(event.Filter{SinceUs: sinceUs, UntilUs: untilUs})

	if err := f.Validate(); err != nil {
		s.counters.IncQueryFailures()
		return nil, err
	}

	key := fmt.Sprintf("summary-all/%d/%d", f.SinceUs, f.UntilUs)
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.engine.SummarizeAll(ctx, f.SinceUs, f.UntilUs)
	})
	if err != nil {
		return nil, err
	}

	s.queriesExecuted.Add(1)
	return result.([]event.AggregateSnapshot), nil
}

// applyDefaultWindow fills an unspecified window with the configured
// trailing window ending now.
func (s *Service) applyDefaultWindow(f event.Filter) event.Filter {
	if f.SinceUs == 0 && f.UntilUs == 0 {
		nowUs := s.now().UnixMicro()
		f.SinceUs = nowUs - s.cfg.DefaultWindow().Microseconds()
		f.UntilUs = nowUs
	}
	return f
}

// =============================================================================
// Counters, Health, Status
// =============================================================================

// Counters returns a snapshot of the pipeline counters, including the
// dropped count and every contained failure kind.
func (s *Service) Counters() metrics.Snapshot {
	return s.counters.Snapshot()
}

// Health describes the read path's view of pipeline health.
type Health struct {
	Healthy         bool   `json:"healthy"`
	Store           string `json:"store"`
	LastCommitUs    int64  `json:"last_commit_us,omitempty"`
	LastCommitAgeMs int64  `json:"last_commit_age_ms,omitempty"`
}

// CheckHealth pings the store and reports the last commit age.
func (s *Service) CheckHealth(ctx context.Context) Health {
	h := Health{Healthy: true, Store: "ok"}

	if err := s.store.Health(ctx); err != nil {
		h.Healthy = false
		h.Store = err.Error()
	}

	if lastUs := s.commits.LastCommitUs(); lastUs > 0 {
		h.LastCommitUs = lastUs
		h.LastCommitAgeMs = (s.now().UnixMicro() - lastUs) / 1000
	}

	return h
}

// Status summarizes stored state for operators.
type Status struct {
	TotalEvents  int64                  `json:"total_events"`
	OldestUs     int64                  `json:"oldest_us"`
	NewestUs     int64                  `json:"newest_us"`
	PerComponent []store.ComponentCount `json:"per_component"`
	Counters     metrics.Snapshot       `json:"counters"`
}

// GetStatus reports stored row counts, time bounds and pipeline counters.
func (s *Service) GetStatus(ctx context.Context) (Status, error) {
	st := Status{Counters: s.counters.Snapshot()}

	total, err := s.store.CountEvents(ctx, event.Filter{})
	if err != nil {
		return st, errors.Wrap(err, "count events")
	}
	st.TotalEvents = total

	oldest, newest, err := s.store.TimeBounds(ctx)
	if err != nil {
		return st, errors.Wrap(err, "time bounds")
	}
	st.OldestUs = oldest
	st.NewestUs = newest

	perComponent, err := s.store.CountByComponent(ctx)
	if err != nil {
		return st, errors.Wrap(err, "component counts")
	}
	st.PerComponent = perComponent

	s.queriesExecuted.Add(1)
	return st, nil
}

// Stats holds query service statistics.
type Stats struct {
	QueriesExecuted int64 `json:"queries_executed"`
	RowsReturned    int64 `json:"rows_returned"`
}

// Stats returns current statistics.
func (s *Service) Stats() Stats {
	return Stats{
		QueriesExecuted: s.queriesExecuted.Load(),
		RowsReturned:    s.rowsReturned.Load(),
	}
}
