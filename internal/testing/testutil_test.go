package testing

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoroutineTest_CollectsFromManyGoroutines(t *testing.T) {
	gt := NewGoroutineTest(t)
	defer gt.Wait()

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		gt.Go(func() error {
			ran.Add(1)
			return nil
		})
	}

	gt.wg.Wait()
	if ran.Load() != 8 {
		t.Errorf("ran %d goroutines, want 8", ran.Load())
	}
}

func TestGoroutineTest_ContextExpires(t *testing.T) {
	gt := NewGoroutineTestWithTimeout(t, 20*time.Millisecond)
	defer gt.Wait()

	gt.GoWithContext(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			// Expired contexts must not fail the test: GoWithContext
			// drops errors once the context is done.
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return fmt.Errorf("context never expired")
		}
	})
}

func TestGoroutineTest_CancelStopsWorkers(t *testing.T) {
	gt := NewGoroutineTest(t)
	defer gt.Wait()

	started := make(chan struct{})
	gt.GoWithContext(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})

	<-started
	gt.Cancel()
}

func TestParallelRunner_AllCasesRun(t *testing.T) {
	runner := NewParallelRunner(t)

	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		runner.Add(fmt.Sprintf("case%d", i), func() error {
			ran.Add(1)
			return nil
		})
	}
	runner.Run()

	if ran.Load() != 4 {
		t.Errorf("ran %d cases, want 4", ran.Load())
	}
}

func TestAssertHelpers(t *testing.T) {
	if err := AssertEqual(2, 2, "equal ints"); err != nil {
		t.Errorf("AssertEqual: %v", err)
	}
	if err := AssertEqual("a", "b", "strings"); err == nil {
		t.Error("AssertEqual should fail on differing values")
	}
	if err := AssertNoError(nil, "no error"); err != nil {
		t.Errorf("AssertNoError: %v", err)
	}
	if err := AssertError(fmt.Errorf("boom"), "want error"); err != nil {
		t.Errorf("AssertError: %v", err)
	}
	if err := AssertError(nil, "want error"); err == nil {
		t.Error("AssertError should fail on nil")
	}
}

func TestWithTimeout(t *testing.T) {
	if err := WithTimeout(time.Second, func() error { return nil }); err != nil {
		t.Errorf("fast fn: %v", err)
	}

	err := WithTimeout(10*time.Millisecond, func() error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})
	if err == nil {
		t.Error("slow fn should time out")
	}
}

func TestRetry_StopsAfterSuccess(t *testing.T) {
	var attempts atomic.Int32

	err := Retry(5, time.Millisecond, func() error {
		if attempts.Add(1) < 3 {
			return fmt.Errorf("not yet")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Retry: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}

	err = Retry(2, time.Millisecond, func() error { return fmt.Errorf("always") })
	if err == nil {
		t.Error("exhausted retries should return the last error")
	}
}

func TestEventually(t *testing.T) {
	var ready atomic.Bool
	go func() {
		time.Sleep(30 * time.Millisecond)
		ready.Store(true)
	}()

	if err := Eventually(time.Second, 5*time.Millisecond, ready.Load); err != nil {
		t.Errorf("Eventually: %v", err)
	}

	if err := Eventually(20*time.Millisecond, 5*time.Millisecond, func() bool { return false }); err == nil {
		t.Error("false condition should time out")
	}
}
