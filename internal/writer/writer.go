// Package writer drains the ingestion buffer into the durable store.
//
// A single consumer goroutine owns the drain: batches commit either when the
// buffer holds a full batch or when the flush interval elapses, whichever
// comes first. A failing commit is retried with bounded exponential backoff;
// when the budget is exhausted the batch is counted lost and the pipeline
// keeps flowing.
package writer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/pulse/internal/buffer"
	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/logging"
	"github.com/xtxerr/pulse/internal/metrics"
)

// EventStore persists event batches. The store guarantees each call is
// atomic: all events in the slice become durable or none do.
type EventStore interface {
	InsertEvents(ctx context.Context, events []event.LatencyEvent) error
}

// Writer is the single consumer of the ingestion buffer.
type Writer struct {
	cfg      config.WriterConfig
	buffer   *buffer.RingBuffer
	store    EventStore
	counters *metrics.Counters
	log      *slog.Logger

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Statistics
	batchesCommitted atomic.Int64
	flushCycles      atomic.Int64
	lastCommitUs     atomic.Int64

	// Channels
	flushCh chan struct{}
}

// Stats holds writer statistics.
type Stats struct {
	Running          bool  `json:"running"`
	BatchesCommitted int64 `json:"batches_committed"`
	FlushCycles      int64 `json:"flush_cycles"`
	LastCommitUs     int64 `json:"last_commit_us"`
}

// New creates a batch writer draining buf into store.
func New(cfg config.WriterConfig, buf *buffer.RingBuffer, store EventStore, counters *metrics.Counters) *Writer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Writer{
		cfg:      cfg,
		buffer:   buf,
		store:    store,
		counters: counters,
		log:      logging.Component("writer"),
		ctx:      ctx,
		cancel:   cancel,
		flushCh:  make(chan struct{}, 1),
	}
}

// Start starts the drain worker.
func (w *Writer) Start() error {
	if w.running.Load() {
		return errors.ErrAlreadyRunning
	}
	w.running.Store(true)

	w.wg.Add(1)
	go w.drainWorker()

	w.log.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval())
	return nil
}

// Stop stops the worker and drains whatever the buffer still holds.
// The final drain runs with a fresh context so shutdown does not abandon
// buffered events; the retry budget bounds how long it can take.
func (w *Writer) Stop() error {
	if !w.running.Load() {
		return nil
	}
	w.running.Store(false)
	w.cancel()

	w.wg.Wait()

	w.flush(context.Background())

	w.log.Info("writer stopped",
		"batches_committed", w.batchesCommitted.Load())
	return nil
}

// ForceFlush triggers an immediate drain without waiting for the interval.
// The pipeline calls this when the buffer reaches a full batch.
func (w *Writer) ForceFlush() {
	select {
	case w.flushCh <- struct{}{}:
	default:
		// Flush already pending
	}
}

// IsRunning returns whether the drain worker is active.
func (w *Writer) IsRunning() bool {
	return w.running.Load()
}

// LastCommitUs returns the wall timestamp of the last successful commit in
// microseconds, or zero if nothing has been committed yet.
func (w *Writer) LastCommitUs() int64 {
	return w.lastCommitUs.Load()
}

// Stats returns current statistics.
func (w *Writer) Stats() Stats {
	return Stats{
		Running:          w.running.Load(),
		BatchesCommitted: w.batchesCommitted.Load(),
		FlushCycles:      w.flushCycles.Load(),
		LastCommitUs:     w.lastCommitUs.Load(),
	}
}

// drainWorker is the single buffer consumer.
func (w *Writer) drainWorker() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval())
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		case <-w.flushCh:
			w.flush(w.ctx)
		}
	}
}

// flush drains the buffer in batches of at most BatchSize until it is empty.
// Each batch commits atomically and independently.
func (w *Writer) flush(ctx context.Context) {
	drained := false
	for {
		batch := w.buffer.PopN(w.cfg.BatchSize)
		if len(batch) == 0 {
			break
		}
		drained = true
		w.commit(ctx, batch)
	}
	if drained {
		w.flushCycles.Add(1)
	}
}

// commit persists one batch, retrying with exponential backoff. Returns
// false when the batch was lost after exhausting the retry budget.
func (w *Writer) commit(ctx context.Context, batch []event.LatencyEvent) bool {
	backoff := w.cfg.RetryBackoff()

	for attempt := 0; ; attempt++ {
		err := w.store.InsertEvents(ctx, batch)
		if err == nil {
			w.committed(batch)
			return true
		}

		w.counters.IncCommitFailures()

		if attempt >= w.cfg.MaxRetries {
			w.lost(batch, err)
			return false
		}

		w.log.Warn("commit failed, retrying",
			"attempt", attempt+1,
			"max_retries", w.cfg.MaxRetries,
			"backoff", backoff,
			"batch_size", len(batch),
			"error", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			// Shutting down: one last immediate attempt so an in-flight
			// batch survives when the store is healthy again.
			finalErr := w.store.InsertEvents(context.Background(), batch)
			if finalErr == nil {
				w.committed(batch)
				return true
			}
			w.counters.IncCommitFailures()
			w.lost(batch, finalErr)
			return false
		case <-timer.C:
		}

		backoff *= 2
		if limit := w.cfg.MaxBackoff(); backoff > limit {
			backoff = limit
		}
	}
}

func (w *Writer) committed(batch []event.LatencyEvent) {
	w.counters.AddCommitted(int64(len(batch)))
	w.batchesCommitted.Add(1)
	w.lastCommitUs.Store(time.Now().UnixMicro())
}

func (w *Writer) lost(batch []event.LatencyEvent, err error) {
	w.counters.AddLostBatch(int64(len(batch)))
	w.log.Error("batch lost after retry exhaustion",
		"batch_size", len(batch),
		"error", err)
}
