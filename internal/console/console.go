// Package console implements the interactive operator console.
//
// It is a thin REPL over the HTTP client: every command maps to one API
// call and renders the result as tabulated text. Command and component
// completion come from go-prompt.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"

	"github.com/xtxerr/pulse/internal/client"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/probe"
)

// callTimeout bounds every API call issued from the prompt. Probe runs can
// legitimately take a while, so it is generous.
const callTimeout = 2 * time.Minute

// Console is an interactive shell bound to one daemon.
type Console struct {
	client *client.Client
	out    io.Writer
}

// New creates a console talking to c.
func New(c *client.Client) *Console {
	return &Console{client: c, out: os.Stdout}
}

// Run starts the interactive loop. It returns only via the exit command or
// end of input.
func (con *Console) Run() {
	fmt.Fprintf(con.out, "pulse console, connected to %s\n", con.client.BaseURL())
	fmt.Fprintln(con.out, "type help for commands, exit to leave")

	p := prompt.New(
		con.execute,
		con.complete,
		prompt.OptionTitle("pulse console"),
		prompt.OptionPrefix("pulse> "),
		prompt.OptionPrefixTextColor(prompt.Cyan),
		prompt.OptionMaxSuggestion(10),
	)
	p.Run()
}

// =============================================================================
// Dispatch
// =============================================================================

func (con *Console) execute(line string) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return
	}
	cmd, rest := args[0], args[1:]

	if cmd == "exit" || cmd == "quit" {
		fmt.Fprintln(con.out, "bye")
		os.Exit(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	if err := con.dispatch(ctx, cmd, rest); err != nil {
		fmt.Fprintf(con.out, "error: %v\n", err)
	}
}

func (con *Console) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		con.printHelp()
		return nil
	case "status":
		return con.cmdStatus(ctx)
	case "health":
		return con.cmdHealth(ctx)
	case "events":
		return con.cmdEvents(ctx, args)
	case "summary":
		return con.cmdSummary(ctx, args)
	case "dropped":
		return con.cmdDropped(ctx)
	case "sessions":
		return con.cmdSessions(ctx)
	case "start":
		return con.cmdStart(ctx, args)
	case "stop":
		return con.cmdStop(ctx, args)
	case "probe":
		return con.cmdProbe(ctx, args)
	case "resources":
		return con.cmdResources(ctx)
	default:
		return fmt.Errorf("unknown command %q, type help", cmd)
	}
}

func (con *Console) printHelp() {
	fmt.Fprint(con.out, `commands:
  status                       storage totals, pipeline and session state
  health                       daemon health check
  events [component] [limit]   recent committed events, newest first
  summary [component] [window] windowed latency statistics (window like 5m, 1h)
  dropped                      overflow and loss accounting
  sessions                     list monitoring sessions
  start [comps] [duration]     start a session; comps comma separated, empty means all
  stop <id>                    stop a session and flush its events
  probe <component> [iters]    run a synthetic load injection
  resources                    host cpu, memory and load
  exit                         leave the console
`)
}

// =============================================================================
// Commands
// =============================================================================

func (con *Console) cmdStatus(ctx context.Context) error {
	st, err := con.client.Status(ctx)
	if err != nil {
		return err
	}
	RenderStatus(con.out, st)
	return nil
}

func (con *Console) cmdHealth(ctx context.Context) error {
	h, err := con.client.Health(ctx)
	if err != nil {
		return err
	}
	RenderHealth(con.out, h)
	return nil
}

func (con *Console) cmdEvents(ctx context.Context, args []string) error {
	var q client.EventsQuery
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			q.Limit = n
			continue
		}
		if q.Component != "" {
			return fmt.Errorf("usage: events [component] [limit]")
		}
		q.Component = arg
	}

	result, err := con.client.Events(ctx, q)
	if err != nil {
		return err
	}
	RenderEvents(con.out, result.Events)
	return nil
}

func (con *Console) cmdSummary(ctx context.Context, args []string) error {
	var q client.SummaryQuery
	for _, arg := range args {
		if d, err := time.ParseDuration(arg); err == nil {
			q.Window = d
			continue
		}
		if q.Component != "" {
			return fmt.Errorf("usage: summary [component] [window]")
		}
		q.Component = arg
	}

	if q.Component == "" {
		snaps, err := con.client.SummaryAll(ctx, q)
		if err != nil {
			return err
		}
		RenderSummaries(con.out, snaps)
		return nil
	}

	snap, err := con.client.Summary(ctx, q)
	if err != nil {
		return err
	}
	RenderSummaries(con.out, []event.AggregateSnapshot{snap})
	return nil
}

func (con *Console) cmdDropped(ctx context.Context) error {
	d, err := con.client.Dropped(ctx)
	if err != nil {
		return err
	}
	RenderDropped(con.out, d)
	return nil
}

func (con *Console) cmdSessions(ctx context.Context) error {
	list, err := con.client.Sessions(ctx)
	if err != nil {
		return err
	}
	RenderSessions(con.out, list)
	return nil
}

func (con *Console) cmdStart(ctx context.Context, args []string) error {
	var components []string
	var duration time.Duration

	for _, arg := range args {
		if d, err := time.ParseDuration(arg); err == nil {
			duration = d
			continue
		}
		for _, c := range strings.Split(arg, ",") {
			if c != "" {
				components = append(components, c)
			}
		}
	}

	info, err := con.client.StartSession(ctx, components, duration)
	if err != nil {
		return err
	}
	fmt.Fprintf(con.out, "session %s started (%s)\n", info.ID, componentsLabel(info.Components))
	if info.ExpiresUs > 0 {
		fmt.Fprintf(con.out, "expires %s\n", fmtStampUs(info.ExpiresUs))
	}
	return nil
}

func (con *Console) cmdStop(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: stop <id>")
	}
	info, err := con.client.StopSession(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(con.out, "session %s stopped\n", info.ID)
	return nil
}

func (con *Console) cmdProbe(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: probe <component> [iterations]")
	}
	req := probe.Request{Component: event.Component(args[0])}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("iterations must be a number: %q", args[1])
		}
		req.Iterations = n
	}

	fmt.Fprintf(con.out, "probing %s...\n", req.Component)
	result, err := con.client.Probe(ctx, req)
	if err != nil {
		return err
	}
	RenderProbeResult(con.out, result)
	return nil
}

func (con *Console) cmdResources(ctx context.Context) error {
	snap, err := con.client.Resources(ctx)
	if err != nil {
		return err
	}
	RenderResources(con.out, snap)
	return nil
}

// =============================================================================
// Completion
// =============================================================================

var commandSuggestions = []prompt.Suggest{
	{Text: "status", Description: "Storage totals and pipeline state"},
	{Text: "health", Description: "Daemon health check"},
	{Text: "events", Description: "Recent committed events"},
	{Text: "summary", Description: "Windowed latency statistics"},
	{Text: "dropped", Description: "Overflow and loss accounting"},
	{Text: "sessions", Description: "List monitoring sessions"},
	{Text: "start", Description: "Start a monitoring session"},
	{Text: "stop", Description: "Stop a session by id"},
	{Text: "probe", Description: "Run a synthetic load injection"},
	{Text: "resources", Description: "Host cpu, memory and load"},
	{Text: "help", Description: "Show command help"},
	{Text: "exit", Description: "Leave the console"},
}

func componentSuggestions() []prompt.Suggest {
	cs := event.Components()
	out := make([]prompt.Suggest, 0, len(cs))
	for _, c := range cs {
		out = append(out, prompt.Suggest{Text: string(c)})
	}
	return out
}

func (con *Console) complete(d prompt.Document) []prompt.Suggest {
	return suggestFor(d.TextBeforeCursor())
}

func suggestFor(text string) []prompt.Suggest {
	fields := strings.Fields(text)

	// The fragment being typed, empty when the cursor follows a space.
	word := ""
	if len(fields) > 0 && !strings.HasSuffix(text, " ") && !strings.HasSuffix(text, "\t") {
		word = fields[len(fields)-1]
	}

	// First word: the command.
	if len(fields) == 0 || (len(fields) == 1 && word != "") {
		return prompt.FilterHasPrefix(commandSuggestions, word, true)
	}

	// Second word of component-taking commands. Comma lists in start are
	// left uncompleted: go-prompt replaces the whole word.
	switch fields[0] {
	case "events", "summary", "probe", "start":
		atSecond := len(fields) == 1 || (len(fields) == 2 && word != "")
		if atSecond && !strings.Contains(word, ",") {
			return prompt.FilterHasPrefix(componentSuggestions(), word, true)
		}
	}
	return nil
}
