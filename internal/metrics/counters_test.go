package metrics

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestCounters_Conservation(t *testing.T) {
	c := NewCounters()

	for i := 0; i < 10; i++ {
		c.IncSubmitted()
	}
	for i := 0; i < 3; i++ {
		c.IncDropped()
	}
	c.AddCommitted(5)

	if got := c.Submitted(); got != 10 {
		t.Errorf("Submitted = %d, want 10", got)
	}
	if got := c.Dropped(); got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
	if got := c.Accepted(); got != 7 {
		t.Errorf("Accepted = %d, want 7", got)
	}
	if got := c.Committed(); got != 5 {
		t.Errorf("Committed = %d, want 5", got)
	}

	snap := c.Snapshot()
	if snap.Accepted != snap.Submitted-snap.Dropped {
		t.Errorf("snapshot breaks conservation: accepted %d, submitted %d, dropped %d",
			snap.Accepted, snap.Submitted, snap.Dropped)
	}
}

func TestCounters_AddLostBatch(t *testing.T) {
	c := NewCounters()

	c.AddLostBatch(40)
	c.AddLostBatch(25)

	snap := c.Snapshot()
	if snap.LostBatches != 2 {
		t.Errorf("LostBatches = %d, want 2", snap.LostBatches)
	}
	if snap.LostEvents != 65 {
		t.Errorf("LostEvents = %d, want 65", snap.LostEvents)
	}
}

func TestCounters_SnapshotCapturesAllFields(t *testing.T) {
	c := NewCounters()

	c.IncSubmitted()
	c.IncDropped()
	c.AddCommitted(1)
	c.IncCaptureErrors()
	c.IncClampedDurations()
	c.IncCommitFailures()
	c.AddLostBatch(1)
	c.IncRetentionFailures()
	c.AddRetentionDeleted(9)
	c.IncQueryFailures()
	c.IncGateRejected()

	snap := c.Snapshot()
	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"Submitted", snap.Submitted, 1},
		{"Accepted", snap.Accepted, 0},
		{"Dropped", snap.Dropped, 1},
		{"Committed", snap.Committed, 1},
		{"CaptureErrors", snap.CaptureErrors, 1},
		{"ClampedDurations", snap.ClampedDurations, 1},
		{"CommitFailures", snap.CommitFailures, 1},
		{"LostBatches", snap.LostBatches, 1},
		{"LostEvents", snap.LostEvents, 1},
		{"RetentionFailures", snap.RetentionFailures, 1},
		{"RetentionDeleted", snap.RetentionDeleted, 9},
		{"QueryFailures", snap.QueryFailures, 1},
		{"GateRejected", snap.GateRejected, 1},
	}
	for _, ck := range checks {
		if ck.got != ck.want {
			t.Errorf("%s = %d, want %d", ck.name, ck.got, ck.want)
		}
	}
}

func TestSnapshot_JSONFieldNames(t *testing.T) {
	// The status endpoint embeds this snapshot; its wire names are part of
	// the HTTP contract.
	data, err := json.Marshal(Snapshot{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{
		"submitted", "accepted", "dropped", "committed",
		"capture_errors", "clamped_durations", "commit_failures",
		"lost_batches", "lost_events",
		"retention_failures", "retention_deleted",
		"query_failures", "gate_rejected", "uptime_sec",
	}
	for _, key := range want {
		if _, ok := fields[key]; !ok {
			t.Errorf("snapshot JSON missing key %q", key)
		}
	}
	if len(fields) != len(want) {
		t.Errorf("snapshot has %d JSON fields, want %d", len(fields), len(want))
	}
}

func TestCounters_ConcurrentUpdates(t *testing.T) {
	c := NewCounters()

	const (
		workers    = 8
		perWorker  = 1000
		dropEvery  = 4
		wantSubmit = workers * perWorker
		wantDrop   = workers * perWorker / dropEvery
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.IncSubmitted()
				if i%dropEvery == 0 {
					c.IncDropped()
				}
			}
		}()
	}
	wg.Wait()

	if got := c.Submitted(); got != wantSubmit {
		t.Errorf("Submitted = %d, want %d", got, wantSubmit)
	}
	if got := c.Dropped(); got != wantDrop {
		t.Errorf("Dropped = %d, want %d", got, wantDrop)
	}
	if got := c.Accepted(); got != wantSubmit-wantDrop {
		t.Errorf("Accepted = %d, want %d", got, wantSubmit-wantDrop)
	}
}
