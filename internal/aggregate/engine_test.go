package aggregate

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/store"
)

// fakeReader serves a fixed duration set regardless of filter.
type fakeReader struct {
	durations []int64
}

func (f *fakeReader) CountEvents(context.Context, event.Filter) (int64, error) {
	return int64(len(f.durations)), nil
}

func (f *fakeReader) GetDurationStats(context.Context, event.Filter) (store.DurationStats, error) {
	stats := store.DurationStats{Count: int64(len(f.durations))}
	if stats.Count == 0 {
		return stats, nil
	}

	var sum int64
	stats.MinUs = f.durations[0]
	stats.MaxUs = f.durations[0]
	for _, d := range f.durations {
		sum += d
		if d < stats.MinUs {
			stats.MinUs = d
		}
		if d > stats.MaxUs {
			stats.MaxUs = d
		}
	}
	stats.MeanUs = float64(sum) / float64(stats.Count)
	return stats, nil
}

func (f *fakeReader) GetDurationsSorted(context.Context, event.Filter) ([]int64, error) {
	sorted := append([]int64(nil), f.durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted, nil
}

func (f *fakeReader) ScanDurations(_ context.Context, _ event.Filter, fn func(int64) error) error {
	for _, d := range f.durations {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func testConfig() config.AggregationConfig {
	return config.AggregationConfig{
		ExactRowLimit:  1_000_000,
		SketchAccuracy: 0.01,
	}
}

func TestNearestRank(t *testing.T) {
	sorted := []int64{1, 2, 3, 4, 5}

	tests := []struct {
		pct  int
		want int64
	}{
		{1, 1},
		{20, 1},
		{21, 2},
		{50, 3},
		{95, 5},
		{99, 5},
		{100, 5},
	}

	for _, tt := range tests {
		if got := NearestRank(sorted, tt.pct); got != tt.want {
			t.Errorf("NearestRank(p%d) = %d, want %d", tt.pct, got, tt.want)
		}
	}
}

func TestNearestRank_Edges(t *testing.T) {
	if got := NearestRank(nil, 50); got != 0 {
		t.Errorf("empty set should return 0, got %d", got)
	}
	single := []int64{7}
	for _, pct := range []int{1, 50, 99, 100} {
		if got := NearestRank(single, pct); got != 7 {
			t.Errorf("single element p%d = %d, want 7", pct, got)
		}
	}
}

func TestEngine_UniformDurations(t *testing.T) {
	durations := make([]int64, 1000)
	for i := range durations {
		durations[i] = 100
	}

	e := New(testConfig(), &fakeReader{durations: durations})
	snap, err := e.Summarize(context.Background(), event.Filter{Component: event.ComponentEditor})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	if snap.Count != 1000 {
		t.Errorf("count = %d, want 1000", snap.Count)
	}
	if snap.MeanUs != 100 {
		t.Errorf("mean_us = %f, want 100", snap.MeanUs)
	}
	if snap.MinUs != 100 || snap.MaxUs != 100 {
		t.Errorf("min/max = %d/%d, want 100/100", snap.MinUs, snap.MaxUs)
	}
	if snap.P50Us != 100 || snap.P99Us != 100 {
		t.Errorf("p50/p99 = %f/%f, want 100/100", snap.P50Us, snap.P99Us)
	}
	if snap.Strategy != event.StrategyExact {
		t.Errorf("strategy = %s, want exact", snap.Strategy)
	}
	if snap.Component != "editor" {
		t.Errorf("component = %s, want editor", snap.Component)
	}
}

func TestEngine_ExactPercentiles(t *testing.T) {
	// Unsorted on purpose; the reader sorts.
	e := New(testConfig(), &fakeReader{durations: []int64{5, 1, 4, 2, 3}})

	snap, err := e.Summarize(context.Background(), event.Filter{})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	if snap.P50Us != 3 {
		t.Errorf("p50_us = %f, want 3", snap.P50Us)
	}
	if snap.P95Us != 5 || snap.P99Us != 5 {
		t.Errorf("p95/p99 = %f/%f, want 5/5", snap.P95Us, snap.P99Us)
	}
	if snap.Component != "all" {
		t.Errorf("component = %s, want all", snap.Component)
	}
}

func TestEngine_EmptyWindow(t *testing.T) {
	e := New(testConfig(), &fakeReader{})

	snap, err := e.Summarize(context.Background(), event.Filter{SinceUs: 100, UntilUs: 200})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	if !snap.IsEmpty() {
		t.Error("snapshot should be empty")
	}
	if snap.Strategy != event.StrategyNone {
		t.Errorf("strategy = %s, want none", snap.Strategy)
	}
	if snap.WindowStartUs != 100 || snap.WindowEndUs != 200 {
		t.Errorf("window bounds not propagated: %d..%d", snap.WindowStartUs, snap.WindowEndUs)
	}
}

func TestEngine_StrategySwitch(t *testing.T) {
	durations := make([]int64, 200)
	for i := range durations {
		durations[i] = int64(i + 1) // 1..200
	}
	reader := &fakeReader{durations: durations}

	cfg := testConfig()
	cfg.ExactRowLimit = 200
	e := New(cfg, reader)

	snap, err := e.Summarize(context.Background(), event.Filter{})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if snap.Strategy != event.StrategyExact {
		t.Errorf("at the limit the strategy must stay exact, got %s", snap.Strategy)
	}

	cfg.ExactRowLimit = 199
	e = New(cfg, reader)

	snap, err = e.Summarize(context.Background(), event.Filter{})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if snap.Strategy != event.StrategyHistogram {
		t.Errorf("above the limit the strategy must switch to histogram, got %s", snap.Strategy)
	}

	// The sketch is configured for 1% relative accuracy; allow 2% slack.
	if rel := math.Abs(snap.P50Us-100) / 100; rel > 0.02 {
		t.Errorf("histogram p50 = %f, want within 2%% of 100", snap.P50Us)
	}
	if rel := math.Abs(snap.P99Us-198) / 198; rel > 0.02 {
		t.Errorf("histogram p99 = %f, want within 2%% of 198", snap.P99Us)
	}
}

func TestEngine_SummarizeAll(t *testing.T) {
	e := New(testConfig(), &fakeReader{durations: []int64{10, 20, 30}})

	snaps, err := e.SummarizeAll(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("summarize all: %v", err)
	}

	if len(snaps) != len(event.Components()) {
		t.Fatalf("expected %d snapshots, got %d", len(event.Components()), len(snaps))
	}
	for i, c := range event.Components() {
		if snaps[i].Component != string(c) {
			t.Errorf("snapshot %d component = %s, want %s", i, snaps[i].Component, c)
		}
	}
}
