// Package aggregate computes windowed statistics over stored events.
//
// Statistics are derived on demand from the durable store and never cached
// or persisted. Count, mean, min and max come straight from SQL aggregates.
// Percentiles follow one of two strategies, chosen per query by window size:
// up to the configured row limit the full duration set is sorted and the
// nearest-rank element selected (exact); above it durations stream into a
// DDSketch and quantiles are read from the sketch (approximate, bounded
// relative error). Every snapshot carries the strategy that produced it.
package aggregate

import (
	"context"
	"log/slog"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/logging"
	"github.com/xtxerr/pulse/internal/store"
)

// EventReader is the store surface the engine reads from.
type EventReader interface {
	CountEvents(ctx context.Context, f event.Filter) (int64, error)
	GetDurationStats(ctx context.Context, f event.Filter) (store.DurationStats, error)
	GetDurationsSorted(ctx context.Context, f event.Filter) ([]int64, error)
	ScanDurations(ctx context.Context, f event.Filter, fn func(int64) error) error
}

// Engine computes aggregate snapshots.
// Engine is stateless apart from configuration and safe for concurrent use.
type Engine struct {
	cfg   config.AggregationConfig
	store EventReader
	log   *slog.Logger
}

// New creates an aggregation engine reading from store.
func New(cfg config.AggregationConfig, store EventReader) *Engine {
	return &Engine{
		cfg:   cfg,
		store: store,
		log:   logging.Component("aggregate"),
	}
}

// Summarize computes statistics for the events matching f.
//
// An empty window yields a snapshot with Count zero and StrategyNone; it is
// not an error.
func (e *Engine) Summarize(ctx context.Context, f event.Filter) (event.AggregateSnapshot, error) {
	snapshot := event.AggregateSnapshot{
		Component:     componentLabel(f.Component),
		WindowStartUs: f.SinceUs,
		WindowEndUs:   f.UntilUs,
		Strategy:      event.StrategyNone,
	}

	count, err := e.store.CountEvents(ctx, f)
	if err != nil {
		return snapshot, errors.Wrap(err, "count window")
	}
	if count == 0 {
		return snapshot, nil
	}
	snapshot.Count = count

	stats, err := e.store.GetDurationStats(ctx, f)
	if err != nil {
		return snapshot, errors.Wrap(err, "window stats")
	}
	snapshot.MeanUs = stats.MeanUs
	snapshot.MinUs = stats.MinUs
	snapshot.MaxUs = stats.MaxUs

	if count <= e.cfg.ExactRowLimit {
		err = e.exactPercentiles(ctx, f, &snapshot)
	} else {
		err = e.sketchPercentiles(ctx, f, &snapshot)
	}
	if err != nil {
		return snapshot, err
	}

	return snapshot, nil
}

// SummarizeAll computes one snapshot per component over the same window.
// Components without events yield empty snapshots.
func (e *Engine) SummarizeAll(ctx context.Context, sinceUs, untilUs int64) ([]event.AggregateSnapshot, error) {
	components := event.Components()
	snapshots := make([]event.AggregateSnapshot, 0, len(components))

	for _, c := range components {
		snap, err := e.Summarize(ctx, event.Filter{
			Component: c,
			SinceUs:   sinceUs,
			UntilUs:   untilUs,
		})
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, nil
}

// exactPercentiles sorts the full window and selects nearest-rank elements.
func (e *Engine) exactPercentiles(ctx context.Context, f event.Filter, snapshot *event.AggregateSnapshot) error {
	durations, err := e.store.GetDurationsSorted(ctx, f)
	if err != nil {
		return errors.Wrap(err, "window durations")
	}
	if len(durations) == 0 {
		return nil
	}

	snapshot.P50Us = float64(NearestRank(durations, 50))
	snapshot.P95Us = float64(NearestRank(durations, 95))
	snapshot.P99Us = float64(NearestRank(durations, 99))
	snapshot.Strategy = event.StrategyExact
	return nil
}

// sketchPercentiles streams the window into a DDSketch and reads quantiles.
func (e *Engine) sketchPercentiles(ctx context.Context, f event.Filter, snapshot *event.AggregateSnapshot) error {
	sketch, err := ddsketch.NewDefaultDDSketch(e.cfg.SketchAccuracy)
	if err != nil {
		return errors.Wrap(err, "create sketch")
	}

	err = e.store.ScanDurations(ctx, f, func(d int64) error {
		return sketch.Add(float64(d))
	})
	if err != nil {
		return errors.Wrap(err, "fill sketch")
	}

	p50, err := sketch.GetValueAtQuantile(0.50)
	if err != nil {
		return errors.Wrap(err, "sketch quantile")
	}
	p95, _ := sketch.GetValueAtQuantile(0.95)
	p99, _ := sketch.GetValueAtQuantile(0.99)

	snapshot.P50Us = p50
	snapshot.P95Us = p95
	snapshot.P99Us = p99
	snapshot.Strategy = event.StrategyHistogram

	e.log.Debug("histogram strategy used",
		"component", snapshot.Component,
		"count", snapshot.Count,
		"exact_row_limit", e.cfg.ExactRowLimit)
	return nil
}

// NearestRank returns the pct-th percentile of sorted via nearest-rank
// selection: the element at rank ceil(pct/100 * N), 1-based. Bounds are
// clamped, so pct 100 is the maximum and any positive pct on a single
// element set returns that element. Returns zero for an empty set.
//
// Integer arithmetic keeps the rank exact; a float ceil can land one
// element off when pct/100 is not representable.
func NearestRank(sorted []int64, pct int) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}

	rank := (pct*n + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

func componentLabel(c event.Component) string {
	if c == "" {
		return "all"
	}
	return string(c)
}
