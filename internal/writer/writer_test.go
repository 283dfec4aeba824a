package writer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/pulse/internal/buffer"
	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/metrics"
)

// fakeStore records committed batches and can fail on demand.
type fakeStore struct {
	mu            sync.Mutex
	batches       [][]event.LatencyEvent
	failRemaining int
	failAlways    bool
}

func (f *fakeStore) InsertEvents(_ context.Context, events []event.LatencyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAlways {
		return fmt.Errorf("store unavailable")
	}
	if f.failRemaining > 0 {
		f.failRemaining--
		return fmt.Errorf("store unavailable")
	}

	batch := make([]event.LatencyEvent, len(events))
	copy(batch, events)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeStore) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, b := range f.batches {
		total += len(b)
	}
	return total
}

func (f *fakeStore) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func testConfig() config.WriterConfig {
	return config.WriterConfig{
		BatchSize:       10,
		FlushIntervalMs: 5,
		MaxRetries:      3,
		RetryBackoffMs:  1,
		MaxBackoffMs:    4,
	}
}

func pushEvents(buf *buffer.RingBuffer, n int) {
	for i := 0; i < n; i++ {
		buf.PushOverwrite(event.LatencyEvent{
			TsUs:        int64(i),
			Component:   event.ComponentEditor,
			SourceLabel: "op",
			DurationUs:  100,
			Success:     true,
		})
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWriter_IntervalFlush(t *testing.T) {
	buf := buffer.New(100)
	store := &fakeStore{}
	counters := metrics.NewCounters()
	w := New(testConfig(), buf, store, counters)

	pushEvents(buf, 4)

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, func() bool { return store.eventCount() == 4 })

	if counters.Committed() != 4 {
		t.Errorf("expected committed=4, got %d", counters.Committed())
	}
	if w.LastCommitUs() == 0 {
		t.Error("last commit timestamp should be set")
	}
	if !buf.IsEmpty() {
		t.Error("buffer should be drained")
	}
}

func TestWriter_ForceFlush(t *testing.T) {
	cfg := testConfig()
	cfg.FlushIntervalMs = 60_000 // interval flush effectively disabled

	buf := buffer.New(100)
	store := &fakeStore{}
	w := New(cfg, buf, store, metrics.NewCounters())

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	pushEvents(buf, 10)
	w.ForceFlush()

	waitFor(t, time.Second, func() bool { return store.eventCount() == 10 })
}

func TestWriter_BatchSizeBound(t *testing.T) {
	cfg := testConfig()
	cfg.FlushIntervalMs = 60_000

	buf := buffer.New(100)
	store := &fakeStore{}
	w := New(cfg, buf, store, metrics.NewCounters())

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	pushEvents(buf, 37)
	w.ForceFlush()

	waitFor(t, time.Second, func() bool { return store.eventCount() == 37 })

	for _, size := range store.batchSizes() {
		if size > cfg.BatchSize {
			t.Errorf("batch of %d exceeds the size bound %d", size, cfg.BatchSize)
		}
	}
}

func TestWriter_PreservesArrivalOrder(t *testing.T) {
	buf := buffer.New(100)
	store := &fakeStore{}
	w := New(testConfig(), buf, store, metrics.NewCounters())

	pushEvents(buf, 25)

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, func() bool { return store.eventCount() == 25 })

	var prev int64 = -1
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, batch := range store.batches {
		for _, ev := range batch {
			if ev.TsUs <= prev {
				t.Fatalf("arrival order broken: %d after %d", ev.TsUs, prev)
			}
			prev = ev.TsUs
		}
	}
}

func TestWriter_RetryThenSuccess(t *testing.T) {
	buf := buffer.New(100)
	store := &fakeStore{failRemaining: 2}
	counters := metrics.NewCounters()
	w := New(testConfig(), buf, store, counters)

	pushEvents(buf, 5)

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, func() bool { return store.eventCount() == 5 })

	snap := counters.Snapshot()
	if snap.CommitFailures != 2 {
		t.Errorf("expected commit_failures=2, got %d", snap.CommitFailures)
	}
	if snap.LostBatches != 0 {
		t.Errorf("expected lost_batches=0, got %d", snap.LostBatches)
	}
	if snap.Committed != 5 {
		t.Errorf("expected committed=5, got %d", snap.Committed)
	}
}

func TestWriter_LostBatchAfterExhaustion(t *testing.T) {
	buf := buffer.New(100)
	store := &fakeStore{failAlways: true}
	counters := metrics.NewCounters()
	w := New(testConfig(), buf, store, counters)

	pushEvents(buf, 5)

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	waitFor(t, time.Second, func() bool {
		return counters.Snapshot().LostBatches == 1
	})

	snap := counters.Snapshot()
	if snap.LostEvents != 5 {
		t.Errorf("expected lost_events=5, got %d", snap.LostEvents)
	}
	// MaxRetries retries after the first failure.
	if snap.CommitFailures != int64(testConfig().MaxRetries)+1 {
		t.Errorf("expected commit_failures=%d, got %d", testConfig().MaxRetries+1, snap.CommitFailures)
	}
	if snap.Committed != 0 {
		t.Errorf("expected committed=0, got %d", snap.Committed)
	}
}

func TestWriter_StopDrainsRemainder(t *testing.T) {
	cfg := testConfig()
	cfg.FlushIntervalMs = 60_000

	buf := buffer.New(100)
	store := &fakeStore{}
	w := New(cfg, buf, store, metrics.NewCounters())

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	pushEvents(buf, 8)

	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if store.eventCount() != 8 {
		t.Errorf("stop should drain the buffer, got %d events", store.eventCount())
	}
	if w.IsRunning() {
		t.Error("writer should not be running after stop")
	}
}

func TestWriter_StartTwice(t *testing.T) {
	buf := buffer.New(10)
	w := New(testConfig(), buf, &fakeStore{}, metrics.NewCounters())

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err == nil {
		t.Error("second start should fail")
	}
}
