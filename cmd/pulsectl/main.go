// pulsectl is the command line operator client for pulsed.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/xtxerr/pulse/internal/client"
)

// Version is set at build time via ldflags
var Version = "dev"

// envAddr overrides the default daemon address.
const envAddr = "PULSE_ADDR"

func usage() {
	fmt.Fprintf(os.Stderr, `pulsectl controls and inspects a running pulsed daemon.

usage: pulsectl [flags] <command> [command flags]

commands:
  status      storage totals, pipeline and session state
  health      daemon health check (exit 1 when unhealthy)
  events      recent committed events, newest first
  summary     windowed latency statistics
  dropped     overflow and loss accounting
  sessions    list monitoring sessions
  start       start a monitoring session
  stop        stop a session by id
  probe       run a synthetic load injection
  export      bulk extraction (parquet, csv, json)
  resources   host cpu, memory and load
  console     interactive console
  version     print version

flags:
`)
	flag.PrintDefaults()
}

func main() {
	addr := flag.String("addr", defaultAddr(), "daemon address (env "+envAddr+")")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	jsonOut := flag.Bool("json", false, "print raw JSON instead of tables")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	a := &app{
		client: client.New(&client.Config{BaseURL: *addr, Timeout: *timeout}),
		json:   *jsonOut,
		out:    os.Stdout,
	}

	code, err := a.run(args[0], args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulsectl: %v\n", err)
		if code == 0 {
			code = 2
		}
	}
	os.Exit(code)
}

func defaultAddr() string {
	if v := os.Getenv(envAddr); v != "" {
		return v
	}
	return client.DefaultConfig().BaseURL
}
