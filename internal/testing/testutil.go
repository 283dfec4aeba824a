// Package testing provides concurrency-safe test utilities for the pulse
// project.
//
// t.Fatal and t.FailNow must not be called from spawned goroutines: they
// call runtime.Goexit, which terminates the calling goroutine rather than
// the test. The helpers here collect goroutine errors over a channel and
// report them from the test goroutine.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest collects errors from test goroutines.
//
// Example usage:
//
//	func TestConcurrentSubmit(t *testing.T) {
//	    gt := testing.NewGoroutineTest(t)
//	    defer gt.Wait()
//
//	    gt.Go(func() error {
//	        if ok := pl.Submit(ev); !ok {
//	            return fmt.Errorf("submit rejected")
//	        }
//	        return nil
//	    })
//	}
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a new GoroutineTest helper.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100), // buffered to avoid blocking
		ctx:    ctx,
		cancel: cancel,
	}
}

// NewGoroutineTestWithTimeout creates a GoroutineTest whose context expires
// after timeout.
func NewGoroutineTestWithTimeout(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn in a goroutine and collects its error.
//
// fn returns an error instead of calling t.Fatal. All errors are reported
// when Wait is called.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			select {
			case gt.errors <- err:
			default:
				// Buffer full, log to prevent blocking
				gt.t.Logf("error channel full, dropping: %v", err)
			}
		}
	}()
}

// GoWithContext runs fn with the test context in a goroutine.
// Errors returned after the context has ended are dropped.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		err := fn(gt.ctx)
		if err == nil || gt.ctx.Err() != nil {
			return
		}
		select {
		case gt.errors <- err:
		default:
			gt.t.Logf("error channel full, dropping: %v", err)
		}
	}()
}

// Wait waits for every spawned goroutine and fails the test if any of them
// returned an error. Defer it right after NewGoroutineTest.
func (gt *GoroutineTest) Wait() {
	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		gt.t.Errorf("goroutine test failed with %d error(s):", len(errs))
		for i, err := range errs {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}

// Context returns the context for this test.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// Cancel cancels the context, signaling goroutines to stop.
func (gt *GoroutineTest) Cancel() {
	gt.cancel()
}

// =============================================================================
// Parallel Test Runner
// =============================================================================

// ParallelRunner runs named test cases concurrently and reports every
// failure at once.
//
// Example:
//
//	runner := testing.NewParallelRunner(t)
//	runner.Add("reader", func() error { return checkReads() })
//	runner.Add("writer", func() error { return checkWrites() })
//	runner.Run()
type ParallelRunner struct {
	t     *testing.T
	cases []testCase
}

type testCase struct {
	name string
	fn   func() error
}

// NewParallelRunner creates a new parallel test runner.
func NewParallelRunner(t *testing.T) *ParallelRunner {
	return &ParallelRunner{t: t}
}

// Add adds a test case to the runner.
func (r *ParallelRunner) Add(name string, fn func() error) {
	r.cases = append(r.cases, testCase{name: name, fn: fn})
}

// Run executes all test cases in parallel and reports any failures.
func (r *ParallelRunner) Run() {
	type result struct {
		name string
		err  error
	}

	results := make(chan result, len(r.cases))
	var wg sync.WaitGroup

	for _, tc := range r.cases {
		wg.Add(1)
		go func(tc testCase) {
			defer wg.Done()
			results <- result{name: tc.name, err: tc.fn()}
		}(tc)
	}

	wg.Wait()
	close(results)

	var failures []result
	for res := range results {
		if res.err != nil {
			failures = append(failures, res)
		}
	}

	if len(failures) > 0 {
		r.t.Errorf("parallel test failed with %d failure(s):", len(failures))
		for _, f := range failures {
			r.t.Errorf("  [%s] %v", f.name, f.err)
		}
		r.t.FailNow()
	}
}

// =============================================================================
// Assertion Helpers
// =============================================================================

// AssertEqual returns an error if got != want.
func AssertEqual[T comparable](got, want T, msg string) error {
	if got != want {
		return fmt.Errorf("%s: got %v, want %v", msg, got, want)
	}
	return nil
}

// AssertNotNil returns an error if v is nil.
func AssertNotNil(v interface{}, msg string) error {
	if v == nil {
		return fmt.Errorf("%s: expected non-nil value", msg)
	}
	return nil
}

// AssertNoError returns an error if err is not nil.
func AssertNoError(err error, msg string) error {
	if err != nil {
		return fmt.Errorf("%s: unexpected error: %w", msg, err)
	}
	return nil
}

// AssertError returns an error if err is nil.
func AssertError(err error, msg string) error {
	if err == nil {
		return fmt.Errorf("%s: expected error, got nil", msg)
	}
	return nil
}

// =============================================================================
// Timeout, Retry, Eventually
// =============================================================================

// WithTimeout runs fn and fails if it does not return within timeout.
//
// Example:
//
//	err := testing.WithTimeout(5*time.Second, func() error {
//	    return pl.Stop()
//	})
func WithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// Retry retries fn until it succeeds or maxAttempts is reached.
func Retry(maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if err := fn(); err != nil {
			lastErr = err
			time.Sleep(delay)
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

// Eventually polls condition until it returns true or timeout elapses.
// Useful for asynchronous effects like a flush landing in the store.
//
// Example:
//
//	err := testing.Eventually(2*time.Second, 10*time.Millisecond, func() bool {
//	    return st.CountEvents(ctx) > 0
//	})
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
