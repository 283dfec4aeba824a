// pulsed is the latency monitoring daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtxerr/pulse/internal/aggregate"
	"github.com/xtxerr/pulse/internal/api"
	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/export"
	"github.com/xtxerr/pulse/internal/logging"
	"github.com/xtxerr/pulse/internal/pipeline"
	"github.com/xtxerr/pulse/internal/probe"
	"github.com/xtxerr/pulse/internal/query"
	"github.com/xtxerr/pulse/internal/session"
	"github.com/xtxerr/pulse/internal/store"
	"github.com/xtxerr/pulse/internal/sysres"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "pulse.yaml", "config file path")
	dbPath := flag.String("db", "", "event store path (overrides config)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logJSON := flag.Bool("log-json", false, "log JSON instead of text")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pulsed %s\n", Version)
		return
	}

	// Load config
	usedDefaults := false
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
			usedDefaults = true
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logJSON {
		cfg.Logging.JSON = true
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	log := logging.Component("main")

	log.Info("pulsed starting", "version", Version)
	if usedDefaults {
		log.Info("no config file found, using defaults", "path", *cfgPath)
	}

	// =========================================================================
	// Event Store (DuckDB)
	// =========================================================================

	log.Info("opening event store", "path", cfg.Storage.Path)

	st, err := store.New(store.Config{
		Path:            cfg.Storage.Path,
		ReadConns:       cfg.Storage.ReadConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime(),
	})
	if err != nil {
		log.Error("open event store", "err", err)
		os.Exit(1)
	}

	// =========================================================================
	// Pipeline, Sessions, Query
	// =========================================================================

	sessions := session.New(cfg.Monitoring)
	pl := pipeline.New(cfg, st, sessions)

	// An operator stopping a session expects its events on disk.
	sessions.OnStop(pl.ForceFlush)

	engine := aggregate.New(cfg.Aggregation, st)
	qs := query.New(cfg.Query, st, engine, pl.Writer(), pl.Counters())
	runner := probe.New(cfg.Probe, pl.Sampler(), pl)
	exporter := export.New(st)

	srv := api.New(cfg, api.Deps{
		Query:     qs,
		Pipeline:  pl,
		Sessions:  sessions,
		Probe:     runner,
		Export:    exporter,
		Resources: sysres.NewHostProvider(),
	})

	// =========================================================================
	// Start
	// =========================================================================

	if err := pl.Start(); err != nil {
		log.Error("start pipeline", "err", err)
		os.Exit(1)
	}
	if err := sessions.Start(); err != nil {
		log.Error("start session manager", "err", err)
		os.Exit(1)
	}
	if err := srv.Start(); err != nil {
		log.Error("start api", "err", err)
		os.Exit(1)
	}

	log.Info("listening", "addr", srv.Addr(),
		"buffer_capacity", cfg.Monitoring.BufferCapacity,
		"require_session", cfg.Monitoring.RequireSession,
		"retention_enabled", cfg.Retention.Enabled)

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", "signal", s.String())

	// Stop accepting requests first.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout())
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("api shutdown", "err", err)
	}
	cancel()

	// Sessions before the pipeline: each stop hook flushes through it.
	if err := sessions.Stop(); err != nil {
		log.Warn("session manager stop", "err", err)
	}

	// Pipeline stop drains the buffer into the store.
	if err := pl.Stop(); err != nil {
		log.Warn("pipeline stop", "err", err)
	}

	if err := st.Close(); err != nil {
		log.Warn("store close", "err", err)
	}

	log.Info("pulsed stopped")
}
