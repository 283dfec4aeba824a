package event

import (
	"encoding/json"
	"time"
)

// Strategy identifies how percentiles in a snapshot were computed.
type Strategy int

const (
	// StrategyNone marks an empty snapshot; no statistics were computed.
	StrategyNone Strategy = iota
	// StrategyExact sorts the full duration set and uses nearest-rank selection.
	StrategyExact
	// StrategyHistogram streams durations into a DDSketch and reads quantiles
	// from it. Chosen when the row count exceeds the configured exact limit.
	StrategyHistogram
)

// String returns a human-readable representation of the Strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyExact:
		return "exact"
	case StrategyHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a string tag into a Strategy. Unknown tags map
// to StrategyNone.
func ParseStrategy(tag string) Strategy {
	switch tag {
	case "exact":
		return StrategyExact
	case "histogram":
		return StrategyHistogram
	default:
		return StrategyNone
	}
}

// MarshalJSON encodes the strategy as its string tag.
func (s Strategy) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes the string tag form produced by MarshalJSON.
func (s *Strategy) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	*s = ParseStrategy(tag)
	return nil
}

// AggregateSnapshot holds windowed statistics derived from stored events.
// It is computed on demand and never persisted.
//
// When Count is zero the snapshot is empty and every other statistic is
// undefined; callers must check Count before reading them.
type AggregateSnapshot struct {
	// Component is the filtered component tag, or "all".
	Component string `json:"component"`

	// Window bounds, Unix microseconds.
	WindowStartUs int64 `json:"window_start_us"`
	WindowEndUs   int64 `json:"window_end_us"`

	// Count is the number of events in the window.
	Count int64 `json:"count"`

	// MeanUs is the arithmetic mean of durations.
	MeanUs float64 `json:"mean_us"`

	// MinUs and MaxUs are the extreme durations.
	MinUs int64 `json:"min_us"`
	MaxUs int64 `json:"max_us"`

	// Nearest-rank (exact) or DDSketch (histogram) percentiles.
	P50Us float64 `json:"p50_us"`
	P95Us float64 `json:"p95_us"`
	P99Us float64 `json:"p99_us"`

	// Strategy records which computation path produced the percentiles.
	Strategy Strategy `json:"strategy"`
}

// IsEmpty returns true if no events fell inside the window.
func (a *AggregateSnapshot) IsEmpty() bool {
	return a.Count == 0
}

// WindowStart returns the window start as a time.Time.
func (a *AggregateSnapshot) WindowStart() time.Time {
	return time.UnixMicro(a.WindowStartUs)
}

// WindowEnd returns the window end as a time.Time.
func (a *AggregateSnapshot) WindowEnd() time.Time {
	return time.UnixMicro(a.WindowEndUs)
}

// WindowDuration returns the window length.
func (a *AggregateSnapshot) WindowDuration() time.Duration {
	return time.Duration(a.WindowEndUs-a.WindowStartUs) * time.Microsecond
}
