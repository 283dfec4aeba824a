package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/export"
	"github.com/xtxerr/pulse/internal/pipeline"
	"github.com/xtxerr/pulse/internal/probe"
	"github.com/xtxerr/pulse/internal/query"
	"github.com/xtxerr/pulse/internal/session"
)

// =============================================================================
// Query Parameters
// =============================================================================

// parseFilter reads the component/since_ms/until_ms parameters. Bounds come
// in as milliseconds and convert to the store's microsecond domain.
func parseFilter(q url.Values) (event.Filter, error) {
	f := event.Filter{Component: event.Component(q.Get("component"))}

	var err error
	if f.SinceUs, err = msParam(q, "since_ms"); err != nil {
		return f, err
	}
	if f.UntilUs, err = msParam(q, "until_ms"); err != nil {
		return f, err
	}
	return f, nil
}

func msParam(q url.Values, name string) (int64, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidWindow, "%s %q", name, raw)
	}
	return ms * 1000, nil
}

func limitParam(q url.Values) (int, error) {
	raw := q.Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidLimit, "%q", raw)
	}
	return n, nil
}

// applyWindowParam folds a ?window= duration string into a trailing window
// ending now. Explicit since/until bounds take precedence.
func applyWindowParam(q url.Values, f event.Filter) (event.Filter, error) {
	raw := q.Get("window")
	if raw == "" || f.SinceUs != 0 || f.UntilUs != 0 {
		return f, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return f, errors.Wrapf(errors.ErrInvalidWindow, "window %q", raw)
	}
	now := time.Now()
	f.UntilUs = now.UnixMicro()
	f.SinceUs = now.Add(-d).UnixMicro()
	return f, nil
}

// decodeBody decodes an optional JSON request body. An empty body leaves
// the destination zero-valued.
func decodeBody(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || err == io.EOF {
		return nil
	}
	return errors.NewValidation("request body", err.Error())
}

// =============================================================================
// Health and Liveness
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.deps.Query.CheckHealth(r.Context())
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok\n")
}

// =============================================================================
// Events and Summaries
// =============================================================================

type eventsResponse struct {
	Events []event.LatencyEvent `json:"events"`
	Count  int                  `json:"count"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f, err := parseFilter(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := limitParam(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	events, err := s.deps.Query.Events(r.Context(), f, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events, Count: len(events)})
}

type summariesResponse struct {
	Summaries []event.AggregateSnapshot `json:"summaries"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f, err := parseFilter(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err = applyWindowParam(q, f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if f.Component != "" {
		snap, err := s.deps.Query.Summary(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	snaps, err := s.deps.Query.SummaryAll(r.Context(), f.SinceUs, f.UntilUs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summariesResponse{Summaries: snaps})
}

// =============================================================================
// Drop Accounting and Status
// =============================================================================

type droppedResponse struct {
	Submitted   int64   `json:"submitted"`
	Accepted    int64   `json:"accepted"`
	Dropped     int64   `json:"dropped"`
	LostBatches int64   `json:"lost_batches"`
	LostEvents  int64   `json:"lost_events"`
	BufferCount int     `json:"buffer_count"`
	BufferCap   int     `json:"buffer_capacity"`
	Usage       float64 `json:"usage_ratio"`
	Pressure    string  `json:"pressure"`
}

func (s *Server) handleDropped(w http.ResponseWriter, r *http.Request) {
	counters := s.deps.Query.Counters()
	ps := s.deps.Pipeline.Stats()

	writeJSON(w, http.StatusOK, droppedResponse{
		Submitted:   counters.Submitted,
		Accepted:    counters.Accepted,
		Dropped:     counters.Dropped,
		LostBatches: counters.LostBatches,
		LostEvents:  counters.LostEvents,
		BufferCount: ps.Buffer.Count,
		BufferCap:   ps.Buffer.Capacity,
		Usage:       ps.Buffer.UsageRatio,
		Pressure:    ps.Pressure,
	})
}

type statusResponse struct {
	query.Status
	Pipeline      pipeline.Stats `json:"pipeline"`
	Sessions      []session.Info `json:"sessions"`
	ExactRowLimit int64          `json:"exact_row_limit"`
	ProbeRuns     int64          `json:"probe_runs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Query.GetStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:        st,
		Pipeline:      s.deps.Pipeline.Stats(),
		Sessions:      s.deps.Sessions.List(),
		ExactRowLimit: s.cfg.Aggregation.ExactRowLimit,
		ProbeRuns:     s.deps.Probe.Runs(),
	})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Resources.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// =============================================================================
// Sessions
// =============================================================================

type startSessionRequest struct {
	Components []string `json:"components"`
	DurationMs int64    `json:"duration_ms"`
}

type sessionListResponse struct {
	Sessions []session.Info `json:"sessions"`
	Active   int            `json:"active"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	components := make([]event.Component, 0, len(req.Components))
	for _, raw := range req.Components {
		c, err := event.ParseComponent(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		components = append(components, c)
	}

	sess, err := s.deps.Sessions.StartSession(components, time.Duration(req.DurationMs)*time.Millisecond)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionListResponse{
		Sessions: s.deps.Sessions.List(),
		Active:   s.deps.Sessions.ActiveCount(),
	})
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := s.deps.Sessions.StopSession(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// =============================================================================
// Probe
// =============================================================================

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	var req probe.Request
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.Probe.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// Export
// =============================================================================

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := parseFilter(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := f.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+format.FileName(time.Now()))

	// Past this point the status is committed; a failure can only be
	// logged and the stream cut short.
	if _, err := s.deps.Export.Export(r.Context(), w, f, format); err != nil {
		s.log.Error("export stream failed",
			"format", string(format),
			"error", err)
	}
}
