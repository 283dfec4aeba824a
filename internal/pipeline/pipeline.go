package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/pulse/internal/buffer"
	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/logging"
	"github.com/xtxerr/pulse/internal/metrics"
	"github.com/xtxerr/pulse/internal/retention"
	"github.com/xtxerr/pulse/internal/sampler"
	"github.com/xtxerr/pulse/internal/writer"
)

// Store is the write-side store surface the pipeline needs: batch inserts
// for the writer and pruning for retention.
type Store interface {
	writer.EventStore
	retention.EventPruner
}

// Pipeline owns the ingestion path from Sampler to durable store.
type Pipeline struct {
	cfg      *config.Config
	buffer   *buffer.RingBuffer
	sampler  *sampler.Sampler
	writer   *writer.Writer
	cleanup  *retention.Manager
	counters *metrics.Counters
	log      *slog.Logger

	// State
	running atomic.Bool

	// Pressure tracking
	pressureMu   sync.Mutex
	pressure     atomic.Int32
	lastPressure PressureLevel
	levelChanges atomic.Int64
}

// Stats holds combined pipeline statistics.
type Stats struct {
	Running   bool             `json:"running"`
	Pressure  string           `json:"pressure"`
	Buffer    buffer.Stats     `json:"buffer"`
	Writer    writer.Stats     `json:"writer"`
	Retention retention.Stats  `json:"retention"`
	Counters  metrics.Snapshot `json:"counters"`
}

// New creates a pipeline writing into st, with event admission gated by
// gate. A nil gate admits every component.
func New(cfg *config.Config, st Store, gate sampler.Gate) *Pipeline {
	counters := metrics.NewCounters()
	buf := buffer.New(cfg.Monitoring.BufferCapacity)

	p := &Pipeline{
		cfg:      cfg,
		buffer:   buf,
		writer:   writer.New(cfg.Writer, buf, st, counters),
		cleanup:  retention.New(cfg.Retention, st, counters),
		counters: counters,
		log:      logging.Component("pipeline"),
	}
	p.sampler = sampler.New(p, gate, counters)

	return p
}

// Start brings up the drain and cleanup workers and opens intake.
func (p *Pipeline) Start() error {
	if p.running.Load() {
		return errors.ErrAlreadyRunning
	}

	if err := p.writer.Start(); err != nil {
		return errors.Wrap(err, "start writer")
	}
	if err := p.cleanup.Start(); err != nil {
		p.writer.Stop()
		return errors.Wrap(err, "start retention")
	}

	p.running.Store(true)
	p.log.Info("pipeline started",
		"buffer_capacity", p.buffer.Cap(),
		"batch_size", p.cfg.Writer.BatchSize)
	return nil
}

// Stop closes intake, stops retention and drains the buffer through the
// writer. The store stays open; the daemon closes it after Stop returns.
func (p *Pipeline) Stop() error {
	if !p.running.Load() {
		return nil
	}
	p.running.Store(false)

	if err := p.cleanup.Stop(); err != nil {
		p.log.Warn("stop retention", "error", err)
	}
	if err := p.writer.Stop(); err != nil {
		p.log.Warn("stop writer", "error", err)
	}

	snap := p.counters.Snapshot()
	p.log.Info("pipeline stopped",
		"submitted", snap.Submitted,
		"committed", snap.Committed,
		"dropped", snap.Dropped,
		"lost", snap.LostEvents)
	return nil
}

// IsRunning returns whether the pipeline accepts events.
func (p *Pipeline) IsRunning() bool {
	return p.running.Load()
}

// Submit hands a completed event to the ingestion buffer. Implements
// sampler.Sink; never blocks.
//
// Accounting invariant: every call while running increments submitted, and
// an overflow eviction increments dropped, so accepted (submitted minus
// dropped) always matches what is buffered or durable.
func (p *Pipeline) Submit(ev event.LatencyEvent) bool {
	if !p.running.Load() {
		return false
	}

	p.counters.IncSubmitted()

	if evicted := p.buffer.PushOverwrite(ev); evicted {
		p.counters.IncDropped()
	}

	if p.buffer.Len() >= p.cfg.Writer.BatchSize {
		p.writer.ForceFlush()
	}

	p.observePressure()
	return true
}

// ForceFlush triggers an immediate writer drain.
func (p *Pipeline) ForceFlush() {
	p.writer.ForceFlush()
}

// Sampler returns the pipeline's sampler for producing events.
func (p *Pipeline) Sampler() *sampler.Sampler {
	return p.sampler
}

// Counters returns the shared counter set.
func (p *Pipeline) Counters() *metrics.Counters {
	return p.counters
}

// Writer returns the batch writer, for commit tracking.
func (p *Pipeline) Writer() *writer.Writer {
	return p.writer
}

// Retention returns the retention manager.
func (p *Pipeline) Retention() *retention.Manager {
	return p.cleanup
}

// Pressure returns the current buffer pressure level.
func (p *Pipeline) Pressure() PressureLevel {
	return PressureLevel(p.pressure.Load())
}

// Stats returns combined statistics from all pipeline components.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Running:   p.running.Load(),
		Pressure:  p.Pressure().String(),
		Buffer:    p.buffer.Stats(),
		Writer:    p.writer.Stats(),
		Retention: p.cleanup.Stats(),
		Counters:  p.counters.Snapshot(),
	}
}

// observePressure re-grades buffer utilization and logs level changes.
func (p *Pipeline) observePressure() {
	usage := p.buffer.UsageRatio()

	p.pressureMu.Lock()
	newLevel := levelFor(usage, p.lastPressure)
	if newLevel == p.lastPressure {
		p.pressureMu.Unlock()
		return
	}
	oldLevel := p.lastPressure
	p.lastPressure = newLevel
	p.pressure.Store(int32(newLevel))
	p.levelChanges.Add(1)
	p.pressureMu.Unlock()

	if newLevel > oldLevel {
		p.log.Warn("buffer pressure rising",
			"from", oldLevel.String(),
			"to", newLevel.String(),
			"usage", usage)
	} else {
		p.log.Info("buffer pressure easing",
			"from", oldLevel.String(),
			"to", newLevel.String(),
			"usage", usage)
	}
}
