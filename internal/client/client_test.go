package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
}

func TestNew_NormalizesBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:3030", "http://localhost:3030"},
		{"http://localhost:3030/", "http://localhost:3030"},
		{"localhost:9999", "http://localhost:9999"},
		{"", "http://localhost:3030"},
	}

	for _, tt := range tests {
		c := New(&Config{BaseURL: tt.in})
		if c.BaseURL() != tt.want {
			t.Errorf("New(%q): base URL = %q, want %q", tt.in, c.BaseURL(), tt.want)
		}
	}

	if c := New(nil); c.BaseURL() != "http://localhost:3030" {
		t.Errorf("New(nil): base URL = %q, want default", c.BaseURL())
	}
}

func TestClient_Status(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("path = %q, want /api/status", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"total_events": 42,
			"oldest_us": 1000,
			"newest_us": 9000,
			"per_component": [{"component": "editor", "count": 30}, {"component": "network", "count": 12}],
			"counters": {"submitted": 50, "accepted": 42, "dropped": 8},
			"exact_row_limit": 10000,
			"probe_runs": 3
		}`))
	}))

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.TotalEvents != 42 {
		t.Errorf("TotalEvents = %d, want 42", st.TotalEvents)
	}
	if len(st.PerComponent) != 2 || st.PerComponent[0].Component != "editor" || st.PerComponent[0].Count != 30 {
		t.Errorf("PerComponent = %+v", st.PerComponent)
	}
	if st.Counters.Dropped != 8 {
		t.Errorf("Counters.Dropped = %d, want 8", st.Counters.Dropped)
	}
	if st.ProbeRuns != 3 {
		t.Errorf("ProbeRuns = %d, want 3", st.ProbeRuns)
	}
}

func TestClient_HealthUnhealthyDecodesBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"healthy": false, "store": "unreachable", "last_commit_us": 0, "last_commit_age_ms": -1}`))
	}))

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health on 503 should decode, got error: %v", err)
	}
	if h.Healthy {
		t.Error("Healthy = true, want false")
	}
	if h.Store != "unreachable" {
		t.Errorf("Store = %q, want unreachable", h.Store)
	}
}

func TestClient_EventsEncodesQuery(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("component") != "editor" {
			t.Errorf("component = %q, want editor", q.Get("component"))
		}
		if q.Get("limit") != "5" {
			t.Errorf("limit = %q, want 5", q.Get("limit"))
		}
		if q.Get("since_ms") != "1000" || q.Get("until_ms") != "2000" {
			t.Errorf("range = %q..%q, want 1000..2000", q.Get("since_ms"), q.Get("until_ms"))
		}
		w.Write([]byte(`{"events": [{"id": 7, "ts_us": 1500000, "component": "editor", "source_label": "open", "duration_us": 250, "success": true}], "count": 1}`))
	}))

	result, err := c.Events(context.Background(), EventsQuery{
		Component: "editor",
		Limit:     5,
		SinceMs:   1000,
		UntilMs:   2000,
	})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if result.Count != 1 || len(result.Events) != 1 {
		t.Fatalf("got %d events (count %d), want 1", len(result.Events), result.Count)
	}
	if result.Events[0].ID != 7 || result.Events[0].DurationUs != 250 {
		t.Errorf("event = %+v", result.Events[0])
	}
}

func TestClient_EventsOmitsZeroParams(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.RawQuery; got != "" {
			t.Errorf("query = %q, want empty", got)
		}
		w.Write([]byte(`{"events": [], "count": 0}`))
	}))

	if _, err := c.Events(context.Background(), EventsQuery{}); err != nil {
		t.Fatalf("Events: %v", err)
	}
}

func TestClient_SummaryRequiresComponent(t *testing.T) {
	c := New(&Config{BaseURL: "http://localhost:1"})
	if _, err := c.Summary(context.Background(), SummaryQuery{}); err == nil {
		t.Fatal("Summary without component should fail before hitting the network")
	}
}

func TestClient_SummaryAll(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("component"); got != "" {
			t.Errorf("component = %q, want unset", got)
		}
		if got := r.URL.Query().Get("window"); got != "5m0s" {
			t.Errorf("window = %q, want 5m0s", got)
		}
		w.Write([]byte(`{"summaries": [
			{"component": "editor", "count": 10, "mean_us": 120.5, "p95_us": 300, "strategy": "exact"},
			{"component": "network", "count": 4, "mean_us": 900, "p95_us": 2000, "strategy": "exact"}
		]}`))
	}))

	snaps, err := c.SummaryAll(context.Background(), SummaryQuery{
		Component: "ignored",
		Window:    5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("SummaryAll: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d summaries, want 2", len(snaps))
	}
	if snaps[0].Component != "editor" || snaps[0].Count != 10 {
		t.Errorf("first summary = %+v", snaps[0])
	}
}

func TestClient_DecodesAPIError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid component: bogus"}`))
	}))

	_, err := c.Events(context.Background(), EventsQuery{Component: "bogus"})
	if err == nil {
		t.Fatal("expected error")
	}
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("error %T is not an APIError: %v", err, err)
	}
	if ae.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", ae.Status)
	}
	if !strings.Contains(ae.Message, "invalid component") {
		t.Errorf("Message = %q, want the daemon's error text", ae.Message)
	}
}

func TestIsNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "session not found"}`))
	}))

	_, err := c.StopSession(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
}

func TestClient_StartSession(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions" {
			t.Errorf("%s %s, want POST /api/sessions", r.Method, r.URL.Path)
		}
		var req startSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Components) != 1 || req.Components[0] != "terminal" {
			t.Errorf("components = %v, want [terminal]", req.Components)
		}
		if req.DurationMs != 60000 {
			t.Errorf("duration_ms = %d, want 60000", req.DurationMs)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "a1b2c3d4e5f60718", "components": ["terminal"], "state": "active", "started_us": 1}`))
	}))

	info, err := c.StartSession(context.Background(), []string{"terminal"}, time.Minute)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if info.ID != "a1b2c3d4e5f60718" {
		t.Errorf("ID = %q", info.ID)
	}
}

func TestClient_StopSessionEscapesID(t *testing.T) {
	var gotPath string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"id": "x", "state": "stopped"}`))
	}))

	if _, err := c.StopSession(context.Background(), "a/b"); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if !strings.Contains(gotPath, "a%2Fb") {
		t.Errorf("path = %q, want escaped id", gotPath)
	}

	if _, err := c.StopSession(context.Background(), ""); err == nil {
		t.Error("StopSession with empty id should fail")
	}
}

func TestClient_Export(t *testing.T) {
	const payload = "id,ts_us,component\n1,1000,editor\n"
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "csv" {
			t.Errorf("format = %q, want csv", got)
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(payload))
	}))

	var buf bytes.Buffer
	n, err := c.Export(context.Background(), &buf, ExportQuery{Format: "csv"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("wrote %d bytes, want %d", n, len(payload))
	}
	if buf.String() != payload {
		t.Errorf("body = %q", buf.String())
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.Status(ctx); err == nil {
		t.Fatal("Status should fail when the context expires")
	}
}
