// Package session manages monitoring sessions and the sampling admission gate.
//
// Sessions are the trigger surface: operators start one to watch a set of
// components for a bounded time. They live in memory only; restarting the
// daemon clears them. When monitoring.require_session is false the gate
// admits every component and sessions are purely informational.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/logging"
)

// =============================================================================
// Session States
// =============================================================================

const (
	// StateActive indicates the session admits events.
	StateActive = "active"

	// StateStopped indicates the session was stopped by an operator.
	StateStopped = "stopped"

	// StateExpired indicates the session ran past its duration.
	StateExpired = "expired"
)

// endedHistoryKeep is how long stopped and expired sessions stay listable
// before the sweep removes them.
const endedHistoryKeep = time.Hour

// =============================================================================
// Session
// =============================================================================

// Session is one monitoring window over a set of components.
//
// Session is safe for concurrent use.
type Session struct {
	ID         string
	Components []event.Component
	StartedAt  time.Time
	ExpiresAt  time.Time // zero means no expiry

	mu      sync.RWMutex
	state   string
	endedAt time.Time
}

// Info is a point-in-time view of a session for listings and JSON.
type Info struct {
	ID         string            `json:"id"`
	Components []event.Component `json:"components"`
	State      string            `json:"state"`
	StartedUs  int64             `json:"started_us"`
	ExpiresUs  int64             `json:"expires_us,omitempty"`
	EndedUs    int64             `json:"ended_us,omitempty"`
}

// State returns the current session state.
func (s *Session) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		ID:         s.ID,
		Components: append([]event.Component(nil), s.Components...),
		State:      s.state,
		StartedUs:  s.StartedAt.UnixMicro(),
	}
	if !s.ExpiresAt.IsZero() {
		info.ExpiresUs = s.ExpiresAt.UnixMicro()
	}
	if !s.endedAt.IsZero() {
		info.EndedUs = s.endedAt.UnixMicro()
	}
	return info
}

// covers reports whether the session watches the component. An empty
// component list covers everything.
func (s *Session) covers(c event.Component) bool {
	if len(s.Components) == 0 {
		return true
	}
	for _, sc := range s.Components {
		if sc == c {
			return true
		}
	}
	return false
}

// admitsAt reports whether the session is active and unexpired at now.
func (s *Session) admitsAt(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateActive {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// end transitions an active session to the given terminal state. Returns
// false if the session already ended.
func (s *Session) end(state string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return false
	}
	s.state = state
	s.endedAt = at
	return true
}

// endedBefore reports whether the session reached a terminal state before
// cutoff.
func (s *Session) endedBefore(cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state != StateActive && s.endedAt.Before(cutoff)
}

// =============================================================================
// Manager
// =============================================================================

// Manager tracks sessions and answers gate checks for the sampler.
//
// Manager is safe for concurrent use.
type Manager struct {
	cfg config.MonitoringConfig
	log *slog.Logger
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	// onStop runs after an operator stops a session, outside the lock.
	onStop func()

	// Lifecycle
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Statistics
	started atomic.Int64
	expired atomic.Int64
}

// Stats holds session manager statistics.
type Stats struct {
	Active  int   `json:"active"`
	Listed  int   `json:"listed"`
	Started int64 `json:"started"`
	Expired int64 `json:"expired"`
}

// New creates a session manager.
func New(cfg config.MonitoringConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		log:      logging.Component("session"),
		now:      time.Now,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnStop registers a hook invoked after an operator stops a session. Used
// to flush buffered events so a just-finished session is fully queryable.
func (m *Manager) OnStop(fn func()) {
	m.onStop = fn
}

// Start launches the expiry sweep worker.
func (m *Manager) Start() error {
	if m.running.Load() {
		return errors.ErrAlreadyRunning
	}
	m.running.Store(true)

	m.wg.Add(1)
	go m.sweepWorker()

	m.log.Info("session manager started",
		"require_session", m.cfg.RequireSession,
		"sweep_interval", m.cfg.SessionSweepInterval())
	return nil
}

// Stop stops the sweep worker. Sessions keep their states.
func (m *Manager) Stop() error {
	if !m.running.Load() {
		return nil
	}
	m.running.Store(false)
	m.cancel()
	m.wg.Wait()
	return nil
}

// StartSession creates an active session over components. An empty
// components list watches everything; a zero duration never expires.
func (m *Manager) StartSession(components []event.Component, duration time.Duration) (*Session, error) {
	for _, c := range components {
		if !c.Valid() {
			return nil, errors.Wrapf(errors.ErrInvalidComponent, "%q", c)
		}
	}
	if duration < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidDuration, "%s", duration)
	}

	id, err := newSessionID()
	if err != nil {
		return nil, errors.Wrap(err, "generate session id")
	}

	now := m.now()
	s := &Session{
		ID:         id,
		Components: append([]event.Component(nil), components...),
		StartedAt:  now,
		state:      StateActive,
	}
	if duration > 0 {
		s.ExpiresAt = now.Add(duration)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	m.started.Add(1)

	m.log.Info("session started",
		"session_id", id,
		"components", len(components),
		"duration", duration)
	return s, nil
}

// StopSession stops an active session and fires the stop hook. Stopping a
// session that already ended is a no-op.
func (m *Manager) StopSession(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "%q", id)
	}

	if !s.end(StateStopped, m.now()) {
		return s, nil
	}

	m.log.Info("session stopped", "session_id", id)
	if m.onStop != nil {
		m.onStop()
	}
	return s, nil
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrSessionNotFound, "%q", id)
	}
	return s, nil
}

// List returns session snapshots, newest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedUs != infos[j].StartedUs {
			return infos[i].StartedUs > infos[j].StartedUs
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Allow reports whether the component is admitted for sampling. Implements
// the sampler gate: with require_session off everything passes, otherwise
// some active unexpired session must cover the component.
func (m *Manager) Allow(c event.Component) bool {
	if !m.cfg.RequireSession {
		return true
	}

	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.covers(c) && s.admitsAt(now) {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of sessions currently admitting events.
func (m *Manager) ActiveCount() int {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		if s.admitsAt(now) {
			n++
		}
	}
	return n
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	return Stats{
		Active:  m.ActiveCount(),
		Listed:  m.count(),
		Started: m.started.Load(),
		Expired: m.expired.Load(),
	}
}

func (m *Manager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// sweepWorker expires overdue sessions on the configured interval.
func (m *Manager) sweepWorker() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SessionSweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep marks overdue sessions expired and drops long-ended ones.
func (m *Manager) sweep() {
	now := m.now()
	cutoff := now.Add(-endedHistoryKeep)

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
			if s.end(StateExpired, s.ExpiresAt) {
				m.expired.Add(1)
				m.log.Debug("session expired", "session_id", id)
			}
		}
		if s.endedBefore(cutoff) {
			delete(m.sessions, id)
		}
	}
}

// newSessionID returns a random 8-byte hex identifier.
func newSessionID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
