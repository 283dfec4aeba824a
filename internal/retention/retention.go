// Package retention removes aged and excess events from the durable store.
//
// Cleanup runs asynchronously on its own interval and never blocks ingestion
// or queries; deletes serialize with batch commits inside the store. Two
// rules apply in order: events older than max_age go first, then the oldest
// rows beyond max_count.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/logging"
	"github.com/xtxerr/pulse/internal/metrics"
)

// EventPruner is the store surface retention needs.
type EventPruner interface {
	DeleteEventsBefore(ctx context.Context, cutoffUs int64) (int64, error)
	TrimEventsToCount(ctx context.Context, keep int64) (int64, error)
	CountEvents(ctx context.Context, f event.Filter) (int64, error)
}

// Manager handles automatic cleanup of expired events.
type Manager struct {
	cfg      config.RetentionConfig
	store    EventPruner
	counters *metrics.Counters
	log      *slog.Logger
	now      func() time.Time

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Statistics
	cyclesRun atomic.Int64
	deleted   atomic.Int64
	lastRunUs atomic.Int64
}

// CleanupResult holds the result of one cleanup cycle.
type CleanupResult struct {
	AgeDeleted   int64   `json:"age_deleted"`
	CountDeleted int64   `json:"count_deleted"`
	Errors       []error `json:"-"`
}

// Total returns the rows removed in this cycle.
func (r CleanupResult) Total() int64 {
	return r.AgeDeleted + r.CountDeleted
}

// Stats holds retention statistics.
type Stats struct {
	Enabled   bool  `json:"enabled"`
	CyclesRun int64 `json:"cycles_run"`
	Deleted   int64 `json:"deleted"`
	LastRunUs int64 `json:"last_run_us"`
}

// New creates a retention manager.
func New(cfg config.RetentionConfig, store EventPruner, counters *metrics.Counters) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:      cfg,
		store:    store,
		counters: counters,
		log:      logging.Component("retention"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the cleanup worker. A disabled configuration is not an
// error; the manager simply stays idle.
func (m *Manager) Start() error {
	if !m.cfg.Enabled {
		m.log.Info("retention disabled")
		return nil
	}
	if m.running.Load() {
		return errors.ErrAlreadyRunning
	}
	m.running.Store(true)

	m.wg.Add(1)
	go m.cleanupWorker()

	m.log.Info("retention started",
		"interval", m.cfg.Interval(),
		"max_age", m.cfg.MaxAge(),
		"max_count", m.cfg.MaxCount)
	return nil
}

// Stop stops the cleanup worker.
func (m *Manager) Stop() error {
	if !m.running.Load() {
		return nil
	}
	m.running.Store(false)
	m.cancel()
	m.wg.Wait()
	return nil
}

// IsRunning returns whether the cleanup worker is active.
func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	return Stats{
		Enabled:   m.cfg.Enabled,
		CyclesRun: m.cyclesRun.Load(),
		Deleted:   m.deleted.Load(),
		LastRunUs: m.lastRunUs.Load(),
	}
}

// cleanupWorker runs cleanup cycles on the configured interval.
func (m *Manager) cleanupWorker() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.RunCleanup(m.ctx)
		}
	}
}

// RunCleanup performs one cleanup cycle. Failures are contained: they are
// counted and logged, the other rule still runs, and the next cycle retries
// naturally.
//
// A max_age of zero deletes every stored row; the count rule applies only
// when max_count is positive.
func (m *Manager) RunCleanup(ctx context.Context) CleanupResult {
	var result CleanupResult

	cutoffUs := m.now().Add(-m.cfg.MaxAge()).UnixMicro()
	n, err := m.store.DeleteEventsBefore(ctx, cutoffUs)
	if err != nil {
		m.counters.IncRetentionFailures()
		m.log.Error("age cleanup failed", "cutoff_us", cutoffUs, "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.AgeDeleted = n
	}

	if m.cfg.MaxCount > 0 {
		n, err := m.store.TrimEventsToCount(ctx, m.cfg.MaxCount)
		if err != nil {
			m.counters.IncRetentionFailures()
			m.log.Error("count cleanup failed", "max_count", m.cfg.MaxCount, "error", err)
			result.Errors = append(result.Errors, err)
		} else {
			result.CountDeleted = n
		}
	}

	if total := result.Total(); total > 0 {
		m.counters.AddRetentionDeleted(total)
		m.deleted.Add(total)
		m.log.Info("cleanup cycle completed",
			"age_deleted", result.AgeDeleted,
			"count_deleted", result.CountDeleted)
	}

	m.cyclesRun.Add(1)
	m.lastRunUs.Store(m.now().UnixMicro())

	return result
}

// DryRun reports what a cleanup cycle would delete without deleting it.
func (m *Manager) DryRun(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult

	cutoffUs := m.now().Add(-m.cfg.MaxAge()).UnixMicro()
	aged, err := m.store.CountEvents(ctx, event.Filter{UntilUs: cutoffUs})
	if err != nil {
		return result, err
	}
	result.AgeDeleted = aged

	if m.cfg.MaxCount > 0 {
		total, err := m.store.CountEvents(ctx, event.Filter{})
		if err != nil {
			return result, err
		}
		if excess := total - aged - m.cfg.MaxCount; excess > 0 {
			result.CountDeleted = excess
		}
	}

	return result, nil
}
