package event

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/pulse/internal/errors"
)

func validEvent() LatencyEvent {
	return LatencyEvent{
		TsUs:        time.Now().UnixMicro(),
		Component:   ComponentEditor,
		SourceLabel: "file_open",
		DurationUs:  1500,
		Success:     true,
	}
}

func TestParseComponent(t *testing.T) {
	for _, c := range Components() {
		got, err := ParseComponent(string(c))
		if err != nil {
			t.Errorf("ParseComponent(%q): %v", c, err)
		}
		if got != c {
			t.Errorf("ParseComponent(%q) = %q", c, got)
		}
	}

	for _, bad := range []string{"", "Editor", "disk", "editor "} {
		if _, err := ParseComponent(bad); !errors.Is(err, errors.ErrInvalidComponent) {
			t.Errorf("ParseComponent(%q): err = %v, want ErrInvalidComponent", bad, err)
		}
	}
}

func TestLatencyEvent_Validate(t *testing.T) {
	valid := validEvent()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*LatencyEvent)
		want   string
	}{
		{"invalid component", func(e *LatencyEvent) { e.Component = "gpu" }, "component"},
		{"zero timestamp", func(e *LatencyEvent) { e.TsUs = 0 }, "ts_us"},
		{"negative duration", func(e *LatencyEvent) { e.DurationUs = -1 }, "duration_us"},
		{"oversized label", func(e *LatencyEvent) { e.SourceLabel = strings.Repeat("x", MaxSourceLabelLen+1) }, "source_label"},
		{"empty metadata key", func(e *LatencyEvent) { e.Metadata = map[string]string{"": "v"} }, "metadata"},
		{"oversized metadata value", func(e *LatencyEvent) {
			e.Metadata = map[string]string{"k": strings.Repeat("v", MaxMetadataStrLen+1)}
		}, "metadata"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validEvent()
			tt.mutate(&ev)
			err := ev.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLatencyEvent_ValidateCollectsAllProblems(t *testing.T) {
	ev := LatencyEvent{Component: "gpu", TsUs: -1, DurationUs: -2}
	err := ev.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, field := range []string{"component", "ts_us", "duration_us"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q missing %q", err, field)
		}
	}
}

func TestLatencyEvent_Accessors(t *testing.T) {
	ev := LatencyEvent{TsUs: 1_700_000_000_000_000, DurationUs: 2500}
	if got := ev.Timestamp().UnixMicro(); got != ev.TsUs {
		t.Errorf("Timestamp = %d, want %d", got, ev.TsUs)
	}
	if got := ev.Duration(); got != 2500*time.Microsecond {
		t.Errorf("Duration = %v, want 2.5ms", got)
	}
}

func TestFilter_Matches(t *testing.T) {
	ev := validEvent()
	ev.TsUs = 1000

	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty filter", Filter{}, true},
		{"same component", Filter{Component: ComponentEditor}, true},
		{"other component", Filter{Component: ComponentNetwork}, false},
		{"since inclusive", Filter{SinceUs: 1000}, true},
		{"since after", Filter{SinceUs: 1001}, false},
		{"until exclusive", Filter{UntilUs: 1000}, false},
		{"until after", Filter{UntilUs: 1001}, true},
		{"inside range", Filter{SinceUs: 500, UntilUs: 1500}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Matches(&ev); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Validate(t *testing.T) {
	ok := []Filter{
		{},
		{Component: ComponentModel},
		{SinceUs: 1, UntilUs: 2},
		{SinceUs: 5},
		{UntilUs: 5},
	}
	for _, f := range ok {
		if err := f.Validate(); err != nil {
			t.Errorf("Validate(%+v): %v", f, err)
		}
	}

	if err := (&Filter{Component: "gpu"}).Validate(); !errors.Is(err, errors.ErrInvalidComponent) {
		t.Errorf("bad component: %v", err)
	}
	if err := (&Filter{SinceUs: -1}).Validate(); !errors.Is(err, errors.ErrInvalidWindow) {
		t.Errorf("negative bound: %v", err)
	}
	if err := (&Filter{SinceUs: 10, UntilUs: 10}).Validate(); !errors.Is(err, errors.ErrInvalidWindow) {
		t.Errorf("empty range: %v", err)
	}
}

func TestStrategy_JSONRoundTrip(t *testing.T) {
	for _, s := range []Strategy{StrategyNone, StrategyExact, StrategyHistogram} {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %v: %v", s, err)
		}
		if string(data) != `"`+s.String()+`"` {
			t.Errorf("marshal %v = %s", s, data)
		}

		var back Strategy
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != s {
			t.Errorf("round trip %v = %v", s, back)
		}
	}

	var s Strategy
	if err := json.Unmarshal([]byte(`"weird"`), &s); err != nil || s != StrategyNone {
		t.Errorf("unknown tag: strategy = %v, err = %v, want none", s, err)
	}
}

func TestAggregateSnapshot_Window(t *testing.T) {
	snap := AggregateSnapshot{WindowStartUs: 1_000_000, WindowEndUs: 4_000_000}
	if snap.WindowDuration() != 3*time.Second {
		t.Errorf("WindowDuration = %v, want 3s", snap.WindowDuration())
	}
	if !snap.IsEmpty() {
		t.Error("zero-count snapshot should be empty")
	}
	snap.Count = 2
	if snap.IsEmpty() {
		t.Error("snapshot with events should not be empty")
	}
}
