package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/event"
)

func testManager(requireSession bool) *Manager {
	cfg := config.DefaultConfig().Monitoring
	cfg.RequireSession = requireSession
	return New(cfg)
}

func TestManager_StartSession(t *testing.T) {
	m := testManager(false)

	s, err := m.StartSession([]event.Component{event.ComponentEditor}, time.Minute)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	if len(s.ID) != 16 {
		t.Errorf("id %q, want 16 hex chars", s.ID)
	}
	if s.State() != StateActive {
		t.Errorf("state = %q, want active", s.State())
	}
	if s.ExpiresAt.Sub(s.StartedAt) != time.Minute {
		t.Errorf("expiry window = %s, want 1m", s.ExpiresAt.Sub(s.StartedAt))
	}

	list := m.List()
	if len(list) != 1 || list[0].ID != s.ID {
		t.Fatalf("list = %+v, want the started session", list)
	}
}

func TestManager_StartSession_Validation(t *testing.T) {
	m := testManager(false)

	if _, err := m.StartSession([]event.Component{"gpu"}, 0); !errors.Is(err, errors.ErrInvalidComponent) {
		t.Errorf("invalid component: err = %v, want ErrInvalidComponent", err)
	}
	if _, err := m.StartSession(nil, -time.Second); !errors.Is(err, errors.ErrInvalidDuration) {
		t.Errorf("negative duration: err = %v, want ErrInvalidDuration", err)
	}
}

func TestManager_StopSession(t *testing.T) {
	m := testManager(false)

	var flushes atomic.Int64
	m.OnStop(func() { flushes.Add(1) })

	s, err := m.StartSession(nil, 0)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	stopped, err := m.StopSession(s.ID)
	if err != nil {
		t.Fatalf("stop session: %v", err)
	}
	if stopped.State() != StateStopped {
		t.Errorf("state = %q, want stopped", stopped.State())
	}
	if got := flushes.Load(); got != 1 {
		t.Errorf("stop hook fired %d times, want 1", got)
	}

	// Second stop is a no-op and must not re-fire the hook.
	if _, err := m.StopSession(s.ID); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if got := flushes.Load(); got != 1 {
		t.Errorf("stop hook fired %d times after repeat stop, want 1", got)
	}
}

func TestManager_StopSession_NotFound(t *testing.T) {
	m := testManager(false)

	if _, err := m.StopSession("deadbeefdeadbeef"); !errors.Is(err, errors.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestManager_Allow_ContinuousMode(t *testing.T) {
	m := testManager(false)

	// No sessions needed when require_session is off.
	for _, c := range event.Components() {
		if !m.Allow(c) {
			t.Errorf("component %s denied in continuous mode", c)
		}
	}
}

func TestManager_Allow_SessionGated(t *testing.T) {
	m := testManager(true)

	if m.Allow(event.ComponentEditor) {
		t.Error("allowed with no sessions")
	}

	s, err := m.StartSession([]event.Component{event.ComponentTerminal}, 0)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	if !m.Allow(event.ComponentTerminal) {
		t.Error("covered component denied")
	}
	if m.Allow(event.ComponentEditor) {
		t.Error("uncovered component allowed")
	}

	if _, err := m.StopSession(s.ID); err != nil {
		t.Fatalf("stop session: %v", err)
	}
	if m.Allow(event.ComponentTerminal) {
		t.Error("allowed after session stopped")
	}
}

func TestManager_Allow_EmptyComponentsCoversAll(t *testing.T) {
	m := testManager(true)

	if _, err := m.StartSession(nil, 0); err != nil {
		t.Fatalf("start session: %v", err)
	}
	for _, c := range event.Components() {
		if !m.Allow(c) {
			t.Errorf("component %s denied under all-components session", c)
		}
	}
}

func TestManager_Allow_ExpiryBeforeSweep(t *testing.T) {
	m := testManager(true)

	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	if _, err := m.StartSession(nil, time.Minute); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if !m.Allow(event.ComponentModel) {
		t.Error("denied inside session window")
	}

	// Past the deadline the gate closes even though no sweep ran yet.
	now = now.Add(time.Minute)
	if m.Allow(event.ComponentModel) {
		t.Error("allowed past session expiry")
	}
}

func TestManager_Sweep(t *testing.T) {
	m := testManager(false)

	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	s, err := m.StartSession(nil, time.Minute)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	now = now.Add(2 * time.Minute)
	m.sweep()

	if s.State() != StateExpired {
		t.Errorf("state = %q, want expired", s.State())
	}
	if got := m.Stats().Expired; got != 1 {
		t.Errorf("expired counter = %d, want 1", got)
	}
	if got := s.Info().EndedUs; got != s.ExpiresAt.UnixMicro() {
		t.Errorf("ended_us = %d, want the expiry instant %d", got, s.ExpiresAt.UnixMicro())
	}

	// Long-ended sessions leave the listing.
	now = now.Add(endedHistoryKeep)
	m.sweep()
	if got := len(m.List()); got != 0 {
		t.Errorf("listed %d sessions after history sweep, want 0", got)
	}
}

func TestManager_List_NewestFirst(t *testing.T) {
	m := testManager(false)

	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	first, _ := m.StartSession(nil, 0)
	now = now.Add(time.Second)
	second, _ := m.StartSession(nil, 0)

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("listed %d sessions, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("order = [%s %s], want newest first", list[0].ID, list[1].ID)
	}
}

func TestManager_SweepWorker(t *testing.T) {
	cfg := config.DefaultConfig().Monitoring
	cfg.SessionSweepIntervalMs = 5
	m := New(cfg)

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(); err == nil {
		t.Error("second start succeeded, want error")
	}

	s, err := m.StartSession(nil, time.Millisecond)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.State() != StateExpired && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.State() != StateExpired {
		t.Fatal("sweep worker never expired the session")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
