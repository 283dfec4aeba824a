package event

import (
	"time"

	"github.com/xtxerr/pulse/internal/errors"
)

// Validation caps. Events violating these are rejected before ingestion.
const (
	// MaxSourceLabelLen bounds the free-text source label.
	MaxSourceLabelLen = 256
	// MaxMetadataEntries bounds the number of metadata pairs per event.
	MaxMetadataEntries = 32
	// MaxMetadataStrLen bounds each metadata key and value.
	MaxMetadataStrLen = 256
)

// MetaKeyClamped is set on events whose duration was clamped to the
// representable range instead of wrapping around.
const MetaKeyClamped = "duration_clamped"

// LatencyEvent is a single completed timing measurement.
//
// Events are immutable once created: the pipeline never updates a committed
// row, it only deletes rows through retention. ID is zero until the event is
// committed; the store assigns a monotonically increasing ID at commit time.
type LatencyEvent struct {
	// ID is assigned on commit. Zero means not yet durable.
	ID int64 `json:"id"`

	// TsUs is the wall-clock capture time in Unix microseconds. It is stamped
	// at operation completion and used for ordering and display only; duration
	// arithmetic never touches it.
	TsUs int64 `json:"ts_us"`

	// Component identifies the measured subsystem.
	Component Component `json:"component"`

	// SourceLabel is a free-text sub-identifier, e.g. a command name.
	SourceLabel string `json:"source_label"`

	// DurationUs is the measured duration in microseconds, derived from a
	// monotonic clock delta. Always >= 0.
	DurationUs int64 `json:"duration_us"`

	// Success records the outcome of the measured operation.
	Success bool `json:"success"`

	// Metadata carries optional string key/value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Timestamp returns the wall-clock capture time.
func (e *LatencyEvent) Timestamp() time.Time {
	return time.UnixMicro(e.TsUs)
}

// Duration returns the measured duration.
func (e *LatencyEvent) Duration() time.Duration {
	return time.Duration(e.DurationUs) * time.Microsecond
}

// Validate checks the event against the data-model invariants.
// All problems are collected so callers can report them at once.
func (e *LatencyEvent) Validate() error {
	ve := errors.NewValidationErrors()
	if !e.Component.Valid() {
		ve.Addf("component: invalid value %q", e.Component)
	}
	if e.TsUs <= 0 {
		ve.Addf("ts_us: must be positive, got %d", e.TsUs)
	}
	if e.DurationUs < 0 {
		ve.Addf("duration_us: must be non-negative, got %d", e.DurationUs)
	}
	if len(e.SourceLabel) > MaxSourceLabelLen {
		ve.Addf("source_label: exceeds %d bytes", MaxSourceLabelLen)
	}
	if len(e.Metadata) > MaxMetadataEntries {
		ve.Addf("metadata: %d entries exceeds limit %d", len(e.Metadata), MaxMetadataEntries)
	}
	for k, v := range e.Metadata {
		if len(k) == 0 || len(k) > MaxMetadataStrLen {
			ve.Addf("metadata: key %q length out of range", k)
		}
		if len(v) > MaxMetadataStrLen {
			ve.Addf("metadata[%q]: value exceeds %d bytes", k, MaxMetadataStrLen)
		}
	}
	return ve.Err()
}

// Filter selects events by component and wall-clock range.
// Zero values mean "unbounded": empty Component matches every component,
// SinceUs/UntilUs of zero leave that side of the range open.
type Filter struct {
	Component Component // exact match; empty matches all
	SinceUs   int64     // inclusive lower bound on TsUs
	UntilUs   int64     // exclusive upper bound on TsUs
}

// Matches reports whether the event passes the filter.
func (f *Filter) Matches(e *LatencyEvent) bool {
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.SinceUs > 0 && e.TsUs < f.SinceUs {
		return false
	}
	if f.UntilUs > 0 && e.TsUs >= f.UntilUs {
		return false
	}
	return true
}

// Validate rejects malformed filters before they reach the store.
func (f *Filter) Validate() error {
	if f.Component != "" && !f.Component.Valid() {
		return errors.Wrapf(errors.ErrInvalidComponent, "%q", f.Component)
	}
	if f.SinceUs < 0 || f.UntilUs < 0 {
		return errors.Wrap(errors.ErrInvalidWindow, "negative bound")
	}
	if f.SinceUs > 0 && f.UntilUs > 0 && f.SinceUs >= f.UntilUs {
		return errors.Wrapf(errors.ErrInvalidWindow, "since %d not before until %d", f.SinceUs, f.UntilUs)
	}
	return nil
}
