// Package probe drives synthetic operations through the live sampling path.
//
// A probe run validates an installation end to end: events flow through the
// real sampler, buffer, writer and store, so a run followed by a summary
// query exercises every pipeline stage. Workers simulate operation latency
// inside a configurable delay band and recover from panics so a wedged
// iteration cannot take the daemon down.
package probe

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/logging"
	"github.com/xtxerr/pulse/internal/pipeline"
	"github.com/xtxerr/pulse/internal/sampler"
)

// sourceLabel marks probe-generated events in the store.
const sourceLabel = "probe"

// defaultIterations applies when a request does not name a count.
const defaultIterations = 10

// backoffDelay is how long a worker yields when the buffer is saturated.
const backoffDelay = 50 * time.Millisecond

// failEvery marks one iteration in this many as a failed operation so
// success-rate plumbing is exercised too.
const failEvery = 10

// Pressured reports ingestion pressure so workers can yield under load.
type Pressured interface {
	Pressure() pipeline.PressureLevel
}

// Request describes one synthetic run.
type Request struct {
	// Component to probe. Empty rotates through every component.
	Component event.Component `json:"component,omitempty"`

	// Iterations is the number of synthetic operations.
	Iterations int `json:"iterations,omitempty"`
}

// Result summarizes a completed run.
type Result struct {
	Component  string `json:"component"`
	Iterations int    `json:"iterations"`
	Succeeded  int64  `json:"succeeded"`
	Failed     int64  `json:"failed"`
	Captured   int64  `json:"captured"`
	Panics     int64  `json:"panics"`
	Backoffs   int64  `json:"backoffs"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// Runner executes probe runs against a sampler.
type Runner struct {
	cfg      config.ProbeConfig
	sampler  *sampler.Sampler
	pressure Pressured
	log      *slog.Logger

	// sleep is replaced in tests to make runs instantaneous.
	sleep func(ctx context.Context, d time.Duration)

	runs atomic.Int64
}

// New creates a probe runner. pressure may be nil when no backoff signal
// is available.
func New(cfg config.ProbeConfig, s *sampler.Sampler, pressure Pressured) *Runner {
	return &Runner{
		cfg:      cfg,
		sampler:  s,
		pressure: pressure,
		log:      logging.Component("probe"),
		sleep:    sleepCtx,
	}
}

// Runs returns how many probe runs completed.
func (r *Runner) Runs() int64 {
	return r.runs.Load()
}

// Run executes a synthetic run and blocks until it finishes or ctx ends.
// A canceled context returns the partial result alongside the ctx error.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Component != "" && !req.Component.Valid() {
		return Result{}, errors.Wrapf(errors.ErrInvalidComponent, "%q", req.Component)
	}

	iterations := req.Iterations
	if iterations <= 0 {
		iterations = defaultIterations
	}
	if iterations > r.cfg.MaxIterations {
		iterations = r.cfg.MaxIterations
	}

	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > iterations {
		workers = iterations
	}

	result := Result{
		Component:  componentLabel(req.Component),
		Iterations: iterations,
	}

	var succeeded, failed, captured, panics, backoffs atomic.Int64

	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				if r.pressure != nil && r.pressure.Pressure() == pipeline.PressureSaturated {
					backoffs.Add(1)
					r.sleep(ctx, backoffDelay)
				}

				ok, success := r.runOne(ctx, pickComponent(req.Component, n), n, &panics)
				if success {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
				if ok {
					captured.Add(1)
				}
			}
		}()
	}

	var err error
dispatch:
	for n := 0; n < iterations; n++ {
		select {
		case jobs <- n:
		case <-ctx.Done():
			err = ctx.Err()
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	result.Succeeded = succeeded.Load()
	result.Failed = failed.Load()
	result.Captured = captured.Load()
	result.Panics = panics.Load()
	result.Backoffs = backoffs.Load()
	result.ElapsedMs = time.Since(start).Milliseconds()
	r.runs.Add(1)

	r.log.Info("probe run finished",
		"component", result.Component,
		"iterations", result.Iterations,
		"captured", result.Captured,
		"failed", result.Failed,
		"elapsed_ms", result.ElapsedMs)
	return result, err
}

// runOne executes a single synthetic operation with panic containment.
// ok reports whether the pipeline captured the event; success is the
// simulated operation outcome.
func (r *Runner) runOne(ctx context.Context, c event.Component, n int, panics *atomic.Int64) (ok, success bool) {
	defer func() {
		if rec := recover(); rec != nil {
			panics.Add(1)
			ok, success = false, false
			r.log.Error("panic in probe iteration", "iteration", n, "panic", rec)
		}
	}()

	success = (n+1)%failEvery != 0

	h := r.sampler.Begin(c, sourceLabel)
	r.sleep(ctx, r.delay())
	_, ok = h.End(success)
	return ok, success
}

// delay picks a simulated operation duration inside the configured band.
func (r *Runner) delay() time.Duration {
	lo, hi := r.cfg.MinDelay(), r.cfg.MaxDelay()
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

func pickComponent(c event.Component, n int) event.Component {
	if c != "" {
		return c
	}
	all := event.Components()
	return all[n%len(all)]
}

func componentLabel(c event.Component) string {
	if c == "" {
		return "all"
	}
	return string(c)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
