package console

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/xtxerr/pulse/internal/client"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/probe"
	"github.com/xtxerr/pulse/internal/session"
	"github.com/xtxerr/pulse/internal/sysres"
)

// The renderers below are shared between the interactive console and the
// one-shot pulsectl commands. They write plain tabulated text; callers that
// want JSON print the payload themselves.

func newTab(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// fmtUs renders a microsecond quantity in the most readable unit.
func fmtUs(us float64) string {
	switch {
	case us >= 1e6:
		return fmt.Sprintf("%.2fs", us/1e6)
	case us >= 1e3:
		return fmt.Sprintf("%.2fms", us/1e3)
	default:
		return fmt.Sprintf("%.0fus", us)
	}
}

// fmtStampUs renders an epoch-microsecond timestamp in local time.
func fmtStampUs(us int64) string {
	if us <= 0 {
		return "-"
	}
	return time.UnixMicro(us).Format("2006-01-02 15:04:05.000")
}

func fmtBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// RenderHealth writes the health report.
func RenderHealth(w io.Writer, h client.Health) {
	tw := newTab(w)
	fmt.Fprintf(tw, "healthy\t%v\n", h.Healthy)
	fmt.Fprintf(tw, "store\t%s\n", h.Store)
	fmt.Fprintf(tw, "last commit\t%s\n", fmtStampUs(h.LastCommitUs))
	if h.LastCommitAgeMs >= 0 {
		fmt.Fprintf(tw, "commit age\t%dms\n", h.LastCommitAgeMs)
	} else {
		fmt.Fprintf(tw, "commit age\t-\n")
	}
	tw.Flush()
}

// RenderStatus writes the full status report.
func RenderStatus(w io.Writer, st client.Status) {
	tw := newTab(w)
	fmt.Fprintf(tw, "stored events\t%d\n", st.TotalEvents)
	fmt.Fprintf(tw, "oldest\t%s\n", fmtStampUs(st.OldestUs))
	fmt.Fprintf(tw, "newest\t%s\n", fmtStampUs(st.NewestUs))
	fmt.Fprintf(tw, "exact row limit\t%d\n", st.ExactRowLimit)
	fmt.Fprintf(tw, "probe runs\t%d\n", st.ProbeRuns)

	p := st.Pipeline
	fmt.Fprintf(tw, "pipeline\trunning=%v pressure=%s\n", p.Running, p.Pressure)
	fmt.Fprintf(tw, "buffer\t%d/%d (%.1f%%) drops=%d\n",
		p.Buffer.Count, p.Buffer.Capacity, p.Buffer.UsageRatio*100, p.Buffer.DropCount)
	fmt.Fprintf(tw, "writer\tbatches=%d cycles=%d last=%s\n",
		p.Writer.BatchesCommitted, p.Writer.FlushCycles, fmtStampUs(p.Writer.LastCommitUs))
	fmt.Fprintf(tw, "retention\tenabled=%v runs=%d deleted=%d\n",
		p.Retention.Enabled, p.Retention.CyclesRun, p.Retention.Deleted)

	active := 0
	for _, s := range st.Sessions {
		if s.State == session.StateActive {
			active++
		}
	}
	fmt.Fprintf(tw, "sessions\t%d listed, %d active\n", len(st.Sessions), active)
	tw.Flush()

	if len(st.PerComponent) > 0 {
		fmt.Fprintln(w)
		ct := newTab(w)
		fmt.Fprintln(ct, "COMPONENT\tEVENTS")
		for _, pc := range st.PerComponent {
			fmt.Fprintf(ct, "%s\t%d\n", pc.Component, pc.Count)
		}
		ct.Flush()
	}

	fmt.Fprintln(w)
	RenderCountersLine(w, st)
}

// RenderCountersLine writes the conservation counters on one line.
func RenderCountersLine(w io.Writer, st client.Status) {
	c := st.Counters
	fmt.Fprintf(w, "submitted=%d accepted=%d dropped=%d committed=%d lost=%d uptime=%ds\n",
		c.Submitted, c.Accepted, c.Dropped, c.Committed, c.LostEvents, c.UptimeSec)
}

// RenderEvents writes an event table, one row per event.
func RenderEvents(w io.Writer, events []event.LatencyEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	tw := newTab(w)
	fmt.Fprintln(tw, "TIME\tCOMPONENT\tSOURCE\tDURATION\tRESULT\tID")
	for i := range events {
		e := &events[i]
		result := "ok"
		if !e.Success {
			result = "fail"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			fmtStampUs(e.TsUs), e.Component, e.SourceLabel,
			fmtUs(float64(e.DurationUs)), result, e.ID)
	}
	tw.Flush()
}

// RenderSummaries writes one statistics row per component snapshot.
func RenderSummaries(w io.Writer, snaps []event.AggregateSnapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, "no data in window")
		return
	}
	tw := newTab(w)
	fmt.Fprintln(tw, "COMPONENT\tCOUNT\tMEAN\tMIN\tMAX\tP50\tP95\tP99\tSTRATEGY")
	for _, s := range snaps {
		if s.Count == 0 {
			fmt.Fprintf(tw, "%s\t0\t-\t-\t-\t-\t-\t-\t%s\n", s.Component, s.Strategy)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Component, s.Count,
			fmtUs(s.MeanUs),
			fmtUs(float64(s.MinUs)), fmtUs(float64(s.MaxUs)),
			fmtUs(s.P50Us), fmtUs(s.P95Us), fmtUs(s.P99Us),
			s.Strategy)
	}
	tw.Flush()
}

// RenderDropped writes the loss accounting report.
func RenderDropped(w io.Writer, d client.Dropped) {
	tw := newTab(w)
	fmt.Fprintf(tw, "submitted\t%d\n", d.Submitted)
	fmt.Fprintf(tw, "accepted\t%d\n", d.Accepted)
	fmt.Fprintf(tw, "dropped (buffer)\t%d\n", d.Dropped)
	fmt.Fprintf(tw, "lost batches\t%d\n", d.LostBatches)
	fmt.Fprintf(tw, "lost events\t%d\n", d.LostEvents)
	fmt.Fprintf(tw, "buffer\t%d/%d (%.1f%%)\n", d.BufferCount, d.BufferCap, d.Usage*100)
	fmt.Fprintf(tw, "pressure\t%s\n", d.Pressure)
	tw.Flush()
}

// RenderSessions writes a session table, newest first.
func RenderSessions(w io.Writer, list client.SessionList) {
	if len(list.Sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	tw := newTab(w)
	fmt.Fprintln(tw, "ID\tSTATE\tCOMPONENTS\tSTARTED\tEXPIRES\tENDED")
	for _, s := range list.Sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.State, componentsLabel(s.Components),
			fmtStampUs(s.StartedUs), fmtStampUs(s.ExpiresUs), fmtStampUs(s.EndedUs))
	}
	tw.Flush()
	fmt.Fprintf(w, "%d active\n", list.Active)
}

func componentsLabel(cs []event.Component) string {
	if len(cs) == 0 {
		return "all"
	}
	out := ""
	for i, c := range cs {
		if i > 0 {
			out += ","
		}
		out += string(c)
	}
	return out
}

// RenderProbeResult writes the outcome of one synthetic load run.
func RenderProbeResult(w io.Writer, r probe.Result) {
	tw := newTab(w)
	fmt.Fprintf(tw, "component\t%s\n", r.Component)
	fmt.Fprintf(tw, "iterations\t%d\n", r.Iterations)
	fmt.Fprintf(tw, "succeeded\t%d\n", r.Succeeded)
	fmt.Fprintf(tw, "failed\t%d\n", r.Failed)
	fmt.Fprintf(tw, "captured\t%d\n", r.Captured)
	fmt.Fprintf(tw, "panics\t%d\n", r.Panics)
	fmt.Fprintf(tw, "backoffs\t%d\n", r.Backoffs)
	fmt.Fprintf(tw, "elapsed\t%dms\n", r.ElapsedMs)
	tw.Flush()
}

// RenderResources writes the host resource snapshot.
func RenderResources(w io.Writer, snap sysres.Snapshot) {
	tw := newTab(w)
	fmt.Fprintf(tw, "cpu\t%.1f%%\n", snap.CPUPercent)
	fmt.Fprintf(tw, "memory\t%s / %s (%.1f%%)\n",
		fmtBytes(snap.MemUsedBytes), fmtBytes(snap.MemTotalBytes), snap.MemUsedPercent)
	fmt.Fprintf(tw, "load\t%.2f %.2f %.2f\n", snap.Load1, snap.Load5, snap.Load15)
	fmt.Fprintf(tw, "processes\t%d\n", snap.Processes)
	fmt.Fprintf(tw, "host uptime\t%s\n", (time.Duration(snap.HostUptimeSec) * time.Second).String())
	fmt.Fprintf(tw, "collected\t%s\n", fmtStampUs(snap.CollectedUs))
	tw.Flush()
}
