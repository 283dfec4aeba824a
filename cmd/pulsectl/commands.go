package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/xtxerr/pulse/internal/client"
	"github.com/xtxerr/pulse/internal/console"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/probe"
)

type app struct {
	client *client.Client
	json   bool
	out    io.Writer
}

func (a *app) run(cmd string, args []string) (int, error) {
	ctx := context.Background()

	switch cmd {
	case "status":
		return a.cmdStatus(ctx, args)
	case "health":
		return a.cmdHealth(ctx, args)
	case "events":
		return a.cmdEvents(ctx, args)
	case "summary":
		return a.cmdSummary(ctx, args)
	case "dropped":
		return a.cmdDropped(ctx, args)
	case "sessions":
		return a.cmdSessions(ctx, args)
	case "start":
		return a.cmdStart(ctx, args)
	case "stop":
		return a.cmdStop(ctx, args)
	case "probe":
		return a.cmdProbe(ctx, args)
	case "export":
		return a.cmdExport(ctx, args)
	case "resources":
		return a.cmdResources(ctx, args)
	case "console":
		return a.cmdConsole(args)
	case "version":
		fmt.Fprintf(a.out, "pulsectl %s\n", Version)
		return 0, nil
	default:
		return 2, fmt.Errorf("unknown command %q, see pulsectl -h", cmd)
	}
}

func (a *app) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

// newFlagSet builds a per-command flag set that prints its own usage.
func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: pulsectl %s\n", summary)
		fs.PrintDefaults()
	}
	return fs
}

// =============================================================================
// Inspection commands
// =============================================================================

func (a *app) cmdStatus(ctx context.Context, args []string) (int, error) {
	if len(args) != 0 {
		return 2, fmt.Errorf("status takes no arguments")
	}
	st, err := a.client.Status(ctx)
	if err != nil {
		return 2, err
	}
	if a.json {
		return 0, a.printJSON(st)
	}
	console.RenderStatus(a.out, st)
	return 0, nil
}

func (a *app) cmdHealth(ctx context.Context, args []string) (int, error) {
	if len(args) != 0 {
		return 2, fmt.Errorf("health takes no arguments")
	}
	h, err := a.client.Health(ctx)
	if err != nil {
		return 2, err
	}
	if a.json {
		if err := a.printJSON(h); err != nil {
			return 2, err
		}
	} else {
		console.RenderHealth(a.out, h)
	}
	if !h.Healthy {
		return 1, nil
	}
	return 0, nil
}

func (a *app) cmdEvents(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("events", "events [-component c] [-limit n] [-last d]")
	component := fs.String("component", "", "filter by component")
	limit := fs.Int("limit", 0, "max events, daemon default when 0")
	last := fs.Duration("last", 0, "trailing window, e.g. 15m")
	if err := fs.Parse(args); err != nil {
		return 2, nil
	}

	q := client.EventsQuery{Component: *component, Limit: *limit}
	if *last > 0 {
		q.SinceMs = time.Now().Add(-*last).UnixMilli()
	}

	result, err := a.client.Events(ctx, q)
	if err != nil {
		return 2, err
	}
	if a.json {
		return 0, a.printJSON(result)
	}
	console.RenderEvents(a.out, trimLabels(result.Events))
	return 0, nil
}

func (a *app) cmdSummary(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("summary", "summary [-component c] [-window d]")
	component := fs.String("component", "", "one component, all when empty")
	window := fs.Duration("window", 0, "trailing window, e.g. 5m, daemon default when 0")
	if err := fs.Parse(args); err != nil {
		return 2, nil
	}

	q := client.SummaryQuery{Component: *component, Window: *window}
	if *component == "" {
		snaps, err := a.client.SummaryAll(ctx, q)
		if err != nil {
			return 2, err
		}
		if a.json {
			return 0, a.printJSON(snaps)
		}
		console.RenderSummaries(a.out, snaps)
		return 0, nil
	}

	snap, err := a.client.Summary(ctx, q)
	if err != nil {
		return 2, err
	}
	if a.json {
		return 0, a.printJSON(snap)
	}
	console.RenderSummaries(a.out, []event.AggregateSnapshot{snap})
	return 0, nil
}

func (a *app) cmdDropped(ctx context.Context, args []string) (int, error) {
	if len(args) != 0 {
		return 2, fmt.Errorf("dropped takes no arguments")
	}
	d, err := a.client.Dropped(ctx)
	if err != nil {
		return 2, err
	}
	if a.json {
		return 0, a.printJSON(d)
	}
	console.RenderDropped(a.out, d)
	return 0, nil
}

func (a *app) cmdResources(ctx context.Context, args []string) (int, error) {
	if len(args) != 0 {
		return 2, fmt.Errorf("resources takes no arguments")
	}
	snap, err := a.client.Resources(ctx)
	if err != nil {
		return 2, err
	}
	if a.json {
		return 0, a.printJSON(snap)
	}
	console.RenderResources(a.out, snap)
	return 0, nil
}

// =============================================================================
// Session commands
// =============================================================================

func (a *app) cmdSessions(ctx context.Context, args []string) (int, error) {
	if len(args) != 0 {
		return 2, fmt.Errorf("sessions takes no arguments")
	}
	list, err := a.client.Sessions(ctx)
	if err != nil {
		return 2, err
	}
	if a.json {
		return 0, a.printJSON(list)
	}
	console.RenderSessions(a.out, list)
	return 0, nil
}

func (a *app) cmdStart(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("start", "start [-components a,b] [-duration d]")
	components := fs.String("components", "", "comma separated components, all when empty")
	duration := fs.Duration("duration", 0, "session lifetime, never expires when 0")
	if err := fs.Parse(args); err != nil {
		return 2, nil
	}

	var cs []string
	for _, c := range strings.Split(*components, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cs = append(cs, c)
		}
	}

	info, err := a.client.StartSession(ctx, cs, *duration)
	if err != nil {
		return 2, err
	}
	if a.json {
		return 0, a.printJSON(info)
	}
	fmt.Fprintf(a.out, "session %s started\n", info.ID)
	return 0, nil
}

func (a *app) cmdStop(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("stop", "stop <id>")
	if err := fs.Parse(args); err != nil {
		return 2, nil
	}
	if fs.NArg() != 1 {
		return 2, fmt.Errorf("usage: pulsectl stop <id>")
	}

	info, err := a.client.StopSession(ctx, fs.Arg(0))
	if err != nil {
		return 2, err
	}
	if a.json {
		return 0, a.printJSON(info)
	}
	fmt.Fprintf(a.out, "session %s stopped\n", info.ID)
	return 0, nil
}

// =============================================================================
// Probe and export
// =============================================================================

func (a *app) cmdProbe(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("probe", "probe -component c [-iterations n]")
	component := fs.String("component", "", "component to probe (required)")
	iterations := fs.Int("iterations", 0, "synthetic operations, daemon default when 0")
	if err := fs.Parse(args); err != nil {
		return 2, nil
	}
	if *component == "" {
		return 2, fmt.Errorf("probe requires -component")
	}

	result, err := a.client.Probe(ctx, probe.Request{
		Component:  event.Component(*component),
		Iterations: *iterations,
	})
	if err != nil {
		return 2, err
	}
	if a.json {
		return 0, a.printJSON(result)
	}
	console.RenderProbeResult(a.out, result)
	return 0, nil
}

func (a *app) cmdExport(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("export", "export [-format f] [-component c] [-last d] [-o file]")
	format := fs.String("format", "json", "output format: parquet, csv or json")
	component := fs.String("component", "", "filter by component")
	last := fs.Duration("last", 0, "trailing window, e.g. 24h")
	outPath := fs.String("o", "", "output file, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return 2, nil
	}

	q := client.ExportQuery{Format: *format, Component: *component}
	if *last > 0 {
		q.SinceMs = time.Now().Add(-*last).UnixMilli()
	}

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return 2, err
		}
		defer f.Close()
		w = f
	} else if *format == "parquet" && term.IsTerminal(int(os.Stdout.Fd())) {
		return 2, fmt.Errorf("refusing to write parquet to a terminal, use -o or redirect")
	}

	n, err := a.client.Export(ctx, w, q)
	if err != nil {
		return 2, err
	}
	fmt.Fprintf(os.Stderr, "wrote %d bytes\n", n)
	return 0, nil
}

// =============================================================================
// Console
// =============================================================================

func (a *app) cmdConsole(args []string) (int, error) {
	if len(args) != 0 {
		return 2, fmt.Errorf("console takes no arguments")
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return 2, fmt.Errorf("console requires an interactive terminal")
	}
	console.New(a.client).Run()
	return 0, nil
}

// =============================================================================
// Terminal width
// =============================================================================

// trimLabels shortens long source labels so event rows fit a narrow
// terminal. Non-terminal output is left untouched.
func trimLabels(events []event.LatencyEvent) []event.LatencyEvent {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return events
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width >= 120 {
		return events
	}

	max := 32
	if width < 90 {
		max = 16
	}

	out := make([]event.LatencyEvent, len(events))
	copy(out, events)
	for i := range out {
		if len(out[i].SourceLabel) > max {
			out[i].SourceLabel = out[i].SourceLabel[:max-3] + "..."
		}
	}
	return out
}
