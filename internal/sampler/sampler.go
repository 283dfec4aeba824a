// Package sampler wraps timed operations and produces completed latency
// events.
//
// A Sampler is cheap to share: Begin records a monotonic start instant and
// End computes the duration from the monotonic delta, stamping the wall
// clock only for display ordering. Neither call blocks or suspends; the
// completed event is handed to the ingestion buffer and the sampler moves on.
package sampler

import (
	"log/slog"
	"time"

	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/logging"
	"github.com/xtxerr/pulse/internal/metrics"
)

// MaxEventDuration is the clamp bound for pathological measurements.
// A duration above it is recorded as the bound with a metadata flag rather
// than wrapping or truncating.
const MaxEventDuration = 365 * 24 * time.Hour

// Sink receives completed events. Implementations must not block the caller;
// the pipeline satisfies this with the drop-oldest buffer.
type Sink interface {
	// Submit hands a completed event to the ingestion buffer.
	// Returns false if the pipeline is not accepting events.
	Submit(ev event.LatencyEvent) bool
}

// Gate decides whether a component is currently being measured.
// The session manager implements it; AllowAll admits everything.
type Gate interface {
	Allow(c event.Component) bool
}

type allowAll struct{}

func (allowAll) Allow(event.Component) bool { return true }

// AllowAll returns a gate that admits every component.
func AllowAll() Gate {
	return allowAll{}
}

// Sampler produces latency events for timed operations.
// Safe for concurrent use; all state lives in the per-operation Handle.
type Sampler struct {
	sink     Sink
	gate     Gate
	clock    Clock
	counters *metrics.Counters
	log      *slog.Logger
}

// New creates a Sampler delivering events to sink, gated by gate.
func New(sink Sink, gate Gate, counters *metrics.Counters) *Sampler {
	return NewWithClock(sink, gate, counters, SystemClock())
}

// NewWithClock creates a Sampler with an injected clock, for tests.
func NewWithClock(sink Sink, gate Gate, counters *metrics.Counters, clock Clock) *Sampler {
	if gate == nil {
		gate = AllowAll()
	}
	return &Sampler{
		sink:     sink,
		gate:     gate,
		clock:    clock,
		counters: counters,
		log:      logging.Component("sampler"),
	}
}

// Handle is an in-flight measurement. It is not safe for concurrent use;
// each logical operation owns its handle.
type Handle struct {
	s         *Sampler
	component event.Component
	label     string
	start     time.Time
	active    bool
	ended     bool
}

// Begin starts a measurement for component/label.
//
// Begin always returns a handle so call sites stay unconditional; when the
// component is not admitted (inactive session, invalid component) the handle
// is inert and End produces no event.
func (s *Sampler) Begin(component event.Component, label string) *Handle {
	h := &Handle{s: s, component: component, label: label}

	if !component.Valid() {
		s.counters.IncCaptureErrors()
		return h
	}
	if !s.gate.Allow(component) {
		s.counters.IncGateRejected()
		return h
	}

	h.start = s.clock.Now()
	if h.start.IsZero() {
		s.counters.IncCaptureErrors()
		return h
	}
	h.active = true
	return h
}

// Active reports whether the handle will produce an event on End.
func (h *Handle) Active() bool {
	return h.active && !h.ended
}

// End completes the measurement and submits the event.
// Returns the event and true when it was handed to the buffer.
func (h *Handle) End(success bool) (event.LatencyEvent, bool) {
	return h.EndWith(success, nil)
}

// EndWith completes the measurement with extra metadata attached.
//
// The duration is the monotonic delta since Begin; the wall timestamp is
// stamped here, at completion. A second End on the same handle is a no-op.
func (h *Handle) EndWith(success bool, metadata map[string]string) (event.LatencyEvent, bool) {
	if !h.active || h.ended {
		return event.LatencyEvent{}, false
	}
	h.ended = true

	s := h.s
	delta := s.clock.Since(h.start)
	if delta < 0 {
		// A monotonic clock cannot run backward; an injected one can.
		s.counters.IncCaptureErrors()
		return event.LatencyEvent{}, false
	}

	durUs, clamped := clampDuration(delta)
	if clamped {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata[event.MetaKeyClamped] = "true"
		s.counters.IncClampedDurations()
		s.log.Warn("duration clamped",
			"component", h.component,
			"source_label", h.label,
			"raw", delta)
	}

	ev := event.LatencyEvent{
		TsUs:        s.clock.Now().UnixMicro(),
		Component:   h.component,
		SourceLabel: h.label,
		DurationUs:  durUs,
		Success:     success,
		Metadata:    metadata,
	}

	if !s.sink.Submit(ev) {
		return ev, false
	}
	return ev, true
}

// Measure times fn and records one event. Convenience for callers that do
// not need the explicit handle.
func (s *Sampler) Measure(component event.Component, label string, fn func() error) error {
	h := s.Begin(component, label)
	err := fn()
	h.End(err == nil)
	return err
}

// clampDuration converts a monotonic delta to microseconds, clamping
// pathological values to MaxEventDuration.
func clampDuration(d time.Duration) (int64, bool) {
	if d > MaxEventDuration {
		return int64(MaxEventDuration / time.Microsecond), true
	}
	return int64(d / time.Microsecond), false
}
