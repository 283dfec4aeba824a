package sampler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/metrics"
)

// fakeClock serves scripted monotonic/wall readings.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	delta time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Since(time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delta
}

func (c *fakeClock) setDelta(d time.Duration) {
	c.mu.Lock()
	c.delta = d
	c.mu.Unlock()
}

// captureSink records submitted events in order.
type captureSink struct {
	mu     sync.Mutex
	events []event.LatencyEvent
	reject bool
}

func (s *captureSink) Submit(ev event.LatencyEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *captureSink) all() []event.LatencyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.LatencyEvent, len(s.events))
	copy(out, s.events)
	return out
}

func TestSampler_BeginEnd(t *testing.T) {
	sink := &captureSink{}
	clock := newFakeClock()
	counters := metrics.NewCounters()
	s := NewWithClock(sink, nil, counters, clock)

	h := s.Begin(event.ComponentEditor, "save")
	if !h.Active() {
		t.Fatal("handle should be active")
	}

	clock.setDelta(1500 * time.Microsecond)
	ev, ok := h.End(true)
	if !ok {
		t.Fatal("end should submit the event")
	}

	if ev.DurationUs != 1500 {
		t.Errorf("expected duration_us=1500, got %d", ev.DurationUs)
	}
	if ev.Component != event.ComponentEditor {
		t.Errorf("expected component=editor, got %s", ev.Component)
	}
	if ev.SourceLabel != "save" {
		t.Errorf("expected source_label=save, got %s", ev.SourceLabel)
	}
	if !ev.Success {
		t.Error("expected success=true")
	}
	if ev.TsUs != clock.Now().UnixMicro() {
		t.Errorf("wall timestamp should be stamped at completion, got %d", ev.TsUs)
	}
	if ev.ID != 0 {
		t.Errorf("id must be unassigned before commit, got %d", ev.ID)
	}

	if got := len(sink.all()); got != 1 {
		t.Errorf("expected 1 submitted event, got %d", got)
	}
}

func TestSampler_EndTwice(t *testing.T) {
	sink := &captureSink{}
	s := NewWithClock(sink, nil, metrics.NewCounters(), newFakeClock())

	h := s.Begin(event.ComponentTerminal, "ls")
	if _, ok := h.End(true); !ok {
		t.Fatal("first end should succeed")
	}
	if _, ok := h.End(true); ok {
		t.Error("second end should be a no-op")
	}
	if h.Active() {
		t.Error("ended handle should not be active")
	}

	if got := len(sink.all()); got != 1 {
		t.Errorf("expected exactly 1 event, got %d", got)
	}
}

func TestSampler_InvalidComponent(t *testing.T) {
	sink := &captureSink{}
	counters := metrics.NewCounters()
	s := NewWithClock(sink, nil, counters, newFakeClock())

	h := s.Begin(event.Component("gpu"), "render")
	if h.Active() {
		t.Error("invalid component should make an inert handle")
	}
	if _, ok := h.End(true); ok {
		t.Error("end on inert handle should not submit")
	}
	if counters.Snapshot().CaptureErrors != 1 {
		t.Errorf("expected capture_errors=1, got %d", counters.Snapshot().CaptureErrors)
	}
	if got := len(sink.all()); got != 0 {
		t.Errorf("expected no events, got %d", got)
	}
}

type denyGate struct{}

func (denyGate) Allow(event.Component) bool { return false }

func TestSampler_GateRejected(t *testing.T) {
	sink := &captureSink{}
	counters := metrics.NewCounters()
	s := NewWithClock(sink, denyGate{}, counters, newFakeClock())

	h := s.Begin(event.ComponentModel, "completion")
	if h.Active() {
		t.Error("gated component should make an inert handle")
	}
	if counters.Snapshot().GateRejected != 1 {
		t.Errorf("expected gate_rejected=1, got %d", counters.Snapshot().GateRejected)
	}
	if got := len(sink.all()); got != 0 {
		t.Errorf("expected no events, got %d", got)
	}
}

func TestSampler_NegativeDelta(t *testing.T) {
	sink := &captureSink{}
	clock := newFakeClock()
	counters := metrics.NewCounters()
	s := NewWithClock(sink, nil, counters, clock)

	h := s.Begin(event.ComponentSystem, "tick")
	clock.setDelta(-time.Second)

	if _, ok := h.End(true); ok {
		t.Error("negative delta must not produce an event")
	}
	if counters.Snapshot().CaptureErrors != 1 {
		t.Errorf("expected capture_errors=1, got %d", counters.Snapshot().CaptureErrors)
	}
	if got := len(sink.all()); got != 0 {
		t.Errorf("expected no events, got %d", got)
	}
}

func TestSampler_ClampPathologicalDuration(t *testing.T) {
	sink := &captureSink{}
	clock := newFakeClock()
	counters := metrics.NewCounters()
	s := NewWithClock(sink, nil, counters, clock)

	h := s.Begin(event.ComponentFilesystem, "scan")
	clock.setDelta(2 * MaxEventDuration)

	ev, ok := h.End(false)
	if !ok {
		t.Fatal("clamped event should still be submitted")
	}

	wantUs := int64(MaxEventDuration / time.Microsecond)
	if ev.DurationUs != wantUs {
		t.Errorf("expected clamped duration_us=%d, got %d", wantUs, ev.DurationUs)
	}
	if ev.Metadata[event.MetaKeyClamped] != "true" {
		t.Error("clamped event must carry the clamp flag")
	}
	if counters.Snapshot().ClampedDurations != 1 {
		t.Errorf("expected clamped_durations=1, got %d", counters.Snapshot().ClampedDurations)
	}
}

func TestSampler_SinkRejection(t *testing.T) {
	sink := &captureSink{reject: true}
	s := NewWithClock(sink, nil, metrics.NewCounters(), newFakeClock())

	h := s.Begin(event.ComponentNetwork, "fetch")
	if _, ok := h.End(true); ok {
		t.Error("submit rejection should be reported to the caller")
	}
}

func TestSampler_Measure(t *testing.T) {
	sink := &captureSink{}
	s := NewWithClock(sink, nil, metrics.NewCounters(), newFakeClock())

	if err := s.Measure(event.ComponentEditor, "format", func() error { return nil }); err != nil {
		t.Fatalf("measure returned %v", err)
	}

	wantErr := errors.New("broken pipe")
	if err := s.Measure(event.ComponentEditor, "format", func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("measure should pass the error through, got %v", err)
	}

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].Success || events[1].Success {
		t.Error("success flags should reflect fn outcomes")
	}
}

func TestSampler_ConcurrentProducers(t *testing.T) {
	sink := &captureSink{}
	s := New(sink, nil, metrics.NewCounters())

	var wg sync.WaitGroup
	producers := 8
	perProducer := 50

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				h := s.Begin(event.ComponentTerminal, "cmd")
				h.EndWith(true, map[string]string{"producer": string(rune('a' + id))})
			}
		}(p)
	}
	wg.Wait()

	events := sink.all()
	if len(events) != producers*perProducer {
		t.Fatalf("expected %d events, got %d", producers*perProducer, len(events))
	}
	for _, ev := range events {
		if ev.DurationUs < 0 {
			t.Fatalf("duration_us must be non-negative, got %d", ev.DurationUs)
		}
	}
}

type nullSink struct{}

func (nullSink) Submit(event.LatencyEvent) bool { return true }

func BenchmarkSampler_BeginEnd(b *testing.B) {
	s := New(nullSink{}, nil, metrics.NewCounters())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h := s.Begin(event.ComponentEditor, "keystroke")
		h.End(true)
	}
}
