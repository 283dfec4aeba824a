// Package metrics provides the pipeline's shared counter set.
//
// The counters are an explicitly owned value injected into each component at
// construction. Nothing in this package is global; the daemon creates one
// Counters and threads it through the pipeline, and the query surface exposes
// a read-only snapshot of it.
package metrics

import (
	"sync/atomic"
	"time"
)

// Counters tracks pipeline-wide event accounting.
//
// Counters is safe for concurrent use; every field is updated atomically.
// The conservation invariant "accepted + dropped == submitted" holds by
// construction: accepted is derived as submitted minus dropped rather than
// tracked independently.
type Counters struct {
	// Ingestion accounting
	submitted atomic.Int64 // events handed to the buffer
	dropped   atomic.Int64 // events evicted by the drop-oldest overflow policy
	committed atomic.Int64 // events durably written

	// Failure accounting
	captureErrors     atomic.Int64 // sampler could not produce a valid measurement
	clampedDurations  atomic.Int64 // durations clamped to the representable range
	commitFailures    atomic.Int64 // failed commit attempts (including retried ones)
	lostBatches       atomic.Int64 // batches discarded after retry exhaustion
	lostEvents        atomic.Int64 // events contained in lost batches
	retentionFailures atomic.Int64 // retention cycles that returned an error
	queryFailures     atomic.Int64 // queries rejected as malformed
	gateRejected      atomic.Int64 // begin calls refused by the session gate

	// Retention accounting
	retentionDeleted atomic.Int64 // rows deleted by retention

	startedAt time.Time
}

// NewCounters creates a zeroed counter set.
func NewCounters() *Counters {
	return &Counters{startedAt: time.Now()}
}

// IncSubmitted records one event handed to the buffer.
func (c *Counters) IncSubmitted() { c.submitted.Add(1) }

// IncDropped records one event evicted under overflow.
func (c *Counters) IncDropped() { c.dropped.Add(1) }

// AddCommitted records n events made durable in one batch commit.
func (c *Counters) AddCommitted(n int64) { c.committed.Add(n) }

// IncCaptureErrors records one failed measurement.
func (c *Counters) IncCaptureErrors() { c.captureErrors.Add(1) }

// IncClampedDurations records one clamp-and-flag duration.
func (c *Counters) IncClampedDurations() { c.clampedDurations.Add(1) }

// IncCommitFailures records one failed commit attempt.
func (c *Counters) IncCommitFailures() { c.commitFailures.Add(1) }

// AddLostBatch records a batch of n events discarded after retry exhaustion.
func (c *Counters) AddLostBatch(n int64) {
	c.lostBatches.Add(1)
	c.lostEvents.Add(n)
}

// IncRetentionFailures records one failed retention cycle.
func (c *Counters) IncRetentionFailures() { c.retentionFailures.Add(1) }

// AddRetentionDeleted records n rows removed by retention.
func (c *Counters) AddRetentionDeleted(n int64) { c.retentionDeleted.Add(n) }

// IncQueryFailures records one rejected query.
func (c *Counters) IncQueryFailures() { c.queryFailures.Add(1) }

// IncGateRejected records one admission refusal.
func (c *Counters) IncGateRejected() { c.gateRejected.Add(1) }

// Submitted returns the total events handed to the buffer.
func (c *Counters) Submitted() int64 { return c.submitted.Load() }

// Dropped returns the cumulative overflow-evicted event count.
func (c *Counters) Dropped() int64 { return c.dropped.Load() }

// Committed returns the total events made durable.
func (c *Counters) Committed() int64 { return c.committed.Load() }

// Accepted returns submitted minus dropped: events that either are still
// buffered or have been committed.
func (c *Counters) Accepted() int64 {
	return c.submitted.Load() - c.dropped.Load()
}

// Snapshot is a point-in-time copy of the counter set.
type Snapshot struct {
	Submitted         int64 `json:"submitted"`
	Accepted          int64 `json:"accepted"`
	Dropped           int64 `json:"dropped"`
	Committed         int64 `json:"committed"`
	CaptureErrors     int64 `json:"capture_errors"`
	ClampedDurations  int64 `json:"clamped_durations"`
	CommitFailures    int64 `json:"commit_failures"`
	LostBatches       int64 `json:"lost_batches"`
	LostEvents        int64 `json:"lost_events"`
	RetentionFailures int64 `json:"retention_failures"`
	RetentionDeleted  int64 `json:"retention_deleted"`
	QueryFailures     int64 `json:"query_failures"`
	GateRejected      int64 `json:"gate_rejected"`
	UptimeSec         int64 `json:"uptime_sec"`
}

// Snapshot returns a consistent-enough copy for reporting. Individual loads
// are atomic; the set as a whole is not fenced, which is fine for counters.
func (c *Counters) Snapshot() Snapshot {
	submitted := c.submitted.Load()
	dropped := c.dropped.Load()
	return Snapshot{
		Submitted:         submitted,
		Accepted:          submitted - dropped,
		Dropped:           dropped,
		Committed:         c.committed.Load(),
		CaptureErrors:     c.captureErrors.Load(),
		ClampedDurations:  c.clampedDurations.Load(),
		CommitFailures:    c.commitFailures.Load(),
		LostBatches:       c.lostBatches.Load(),
		LostEvents:        c.lostEvents.Load(),
		RetentionFailures: c.retentionFailures.Load(),
		RetentionDeleted:  c.retentionDeleted.Load(),
		QueryFailures:     c.queryFailures.Load(),
		GateRejected:      c.gateRejected.Load(),
		UptimeSec:         int64(time.Since(c.startedAt).Seconds()),
	}
}
