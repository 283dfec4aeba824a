// Package client provides the typed HTTP client for the pulse API.
//
// Every method maps to one endpoint and returns the decoded response type.
// The zero-dependency surface (no store, no query service) keeps binaries
// that embed the client free of the daemon's storage stack.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/pulse/internal/event"
	"github.com/xtxerr/pulse/internal/metrics"
	"github.com/xtxerr/pulse/internal/pipeline"
	"github.com/xtxerr/pulse/internal/probe"
	"github.com/xtxerr/pulse/internal/session"
	"github.com/xtxerr/pulse/internal/sysres"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds client configuration.
type Config struct {
	// BaseURL is the daemon address, e.g. "http://localhost:3030".
	BaseURL string

	// Timeout bounds non-streaming requests. Export streams run under the
	// caller's context alone and ignore it.
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:3030",
		Timeout: 30 * time.Second,
	}
}

// Client talks to a pulse daemon over HTTP.
// Client is safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// New creates a client.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultConfig().BaseURL
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		timeout: cfg.Timeout,
		// No transport-level timeout: exports stream indefinitely and
		// everything else is bounded per call via context.
		http: &http.Client{},
	}
}

// BaseURL returns the normalized daemon address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// Errors
// =============================================================================

// APIError is a non-2xx response decoded from the daemon's error body.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

type errorBody struct {
	Error string `json:"error"`
}

// decodeError turns a non-2xx response into an APIError, using the JSON
// error body when the daemon sent one.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var body errorBody
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
		}
	}
	return apiErr
}

// =============================================================================
// Response Types
// =============================================================================

// Health mirrors the /health payload.
type Health struct {
	Healthy         bool   `json:"healthy"`
	Store           string `json:"store"`
	LastCommitUs    int64  `json:"last_commit_us"`
	LastCommitAgeMs int64  `json:"last_commit_age_ms"`
}

// ComponentCount is a per-component stored row count.
type ComponentCount struct {
	Component string `json:"component"`
	Count     int64  `json:"count"`
}

// Status mirrors the /api/status payload.
type Status struct {
	TotalEvents   int64            `json:"total_events"`
	OldestUs      int64            `json:"oldest_us"`
	NewestUs      int64            `json:"newest_us"`
	PerComponent  []ComponentCount `json:"per_component"`
	Counters      metrics.Snapshot `json:"counters"`
	Pipeline      pipeline.Stats   `json:"pipeline"`
	Sessions      []session.Info   `json:"sessions"`
	ExactRowLimit int64            `json:"exact_row_limit"`
	ProbeRuns     int64            `json:"probe_runs"`
}

// Dropped mirrors the /api/dropped payload.
type Dropped struct {
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

// EventsResult is a page of raw events, newest first.
type EventsResult struct {
	Events []event.LatencyEvent `json:"events"`
	Count  int                  `json:"count"`
}

// SessionList mirrors the GET /api/sessions payload.
type SessionList struct {
	Sessions []session.Info `json:"sessions"`
	Active   int            `json:"active"`
}

type summariesResponse struct {
	Summaries []event.AggregateSnapshot `json:"summaries"`
}

// =============================================================================
// Query Parameters
// =============================================================================

// EventsQuery selects raw events. Zero values are unbounded.
type EventsQuery struct {
	Component string
	Limit     int
	SinceMs   int64
	UntilMs   int64
}

func (q EventsQuery) values() url.Values {
	v := url.Values{}
	if q.Component != "" {
		v.Set("component", q.Component)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	addRange(v, q.SinceMs, q.UntilMs)
	return v
}

// SummaryQuery selects a statistics window. Window is a trailing window
// ending now; explicit SinceMs/UntilMs bounds take precedence over it.
type SummaryQuery struct {
	Component string
	Window    time.Duration
	SinceMs   int64
	UntilMs   int64
}

func (q SummaryQuery) values() url.Values {
	v := url.Values{}
	if q.Component != "" {
		v.Set("component", q.Component)
	}
	if q.Window > 0 {
		v.Set("window", q.Window.String())
	}
	addRange(v, q.SinceMs, q.UntilMs)
	return v
}

// ExportQuery selects events for bulk extraction.
type ExportQuery struct {
	Format    string
	Component string
	SinceMs   int64
	UntilMs   int64
}

func (q ExportQuery) values() url.Values {
	v := url.Values{}
	if q.Format != "" {
		v.Set("format", q.Format)
	}
	if q.Component != "" {
		v.Set("component", q.Component)
	}
	addRange(v, q.SinceMs, q.UntilMs)
	return v
}

func addRange(v url.Values, sinceMs, untilMs int64) {
	if sinceMs > 0 {
		v.Set("since_ms", strconv.FormatInt(sinceMs, 10))
	}
	if untilMs > 0 {
		v.Set("until_ms", strconv.FormatInt(untilMs, 10))
	}
}

// =============================================================================
// Liveness, Health, Status
// =============================================================================

// Livez checks the liveness probe.
func (c *Client) Livez(ctx context.Context) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/livez", nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// Health fetches pipeline health. An unhealthy daemon answers 503 with the
// same body, so the decoded report is returned rather than an error; the
// caller checks Healthy.
func (c *Client) Health(ctx context.Context) (Health, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var h Health
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return h, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return h, decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return h, fmt.Errorf("decode health: %w", err)
	}
	return h, nil
}

// Status fetches the full operator status report.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.getJSON(ctx, "/api/status", nil, &st)
	return st, err
}

// Dropped fetches the overflow and loss accounting.
func (c *Client) Dropped(ctx context.Context) (Dropped, error) {
	var d Dropped
	err := c.getJSON(ctx, "/api/dropped", nil, &d)
	return d, err
}

// Resources fetches the host resource passthrough.
func (c *Client) Resources(ctx context.Context) (sysres.Snapshot, error) {
	var snap sysres.Snapshot
	err := c.getJSON(ctx, "/api/system/resources", nil, &snap)
	return snap, err
}

// =============================================================================
// Events and Summaries
// =============================================================================

// Events fetches committed events matching q, newest first.
func (c *Client) Events(ctx context.Context, q EventsQuery) (EventsResult, error) {
	var result EventsResult
	err := c.getJSON(ctx, "/api/events", q.values(), &result)
	return result, err
}

// Summary fetches windowed statistics for one component.
func (c *Client) Summary(ctx context.Context, q SummaryQuery) (event.AggregateSnapshot, error) {
	var snap event.AggregateSnapshot
	if q.Component == "" {
		return snap, fmt.Errorf("summary requires a component; use SummaryAll for every component")
	}
	err := c.getJSON(ctx, "/api/summary", q.values(), &snap)
	return snap, err
}

// SummaryAll fetches one snapshot per component over the same window.
// q.Component is ignored.
func (c *Client) SummaryAll(ctx context.Context, q SummaryQuery) ([]event.AggregateSnapshot, error) {
	q.Component = ""
	var resp summariesResponse
	if err := c.getJSON(ctx, "/api/summary", q.values(), &resp); err != nil {
		return nil, err
	}
	return resp.Summaries, nil
}

// =============================================================================
// Sessions
// =============================================================================

type startSessionRequest struct {
	Components []string `json:"components"`
	DurationMs int64    `json:"duration_ms"`
}

// Sessions lists monitoring sessions, newest first.
func (c *Client) Sessions(ctx context.Context) (SessionList, error) {
	var list SessionList
	err := c.getJSON(ctx, "/api/sessions", nil, &list)
	return list, err
}

// StartSession starts a monitoring session. An empty components slice
// watches everything; a zero duration never expires.
func (c *Client) StartSession(ctx context.Context, components []string, duration time.Duration) (session.Info, error) {
	var info session.Info
	req := startSessionRequest{
		Components: components,
		DurationMs: duration.Milliseconds(),
	}
	err := c.postJSON(ctx, "/api/sessions", req, &info)
	return info, err
}

// StopSession stops a session by ID and forces a writer flush on the daemon.
func (c *Client) StopSession(ctx context.Context, id string) (session.Info, error) {
	var info session.Info
	if id == "" {
		return info, fmt.Errorf("session id required")
	}
	err := c.postJSON(ctx, "/api/sessions/"+url.PathEscape(id)+"/stop", nil, &info)
	return info, err
}

// =============================================================================
// Probe
// =============================================================================

// Probe runs a synthetic load injection and blocks until it finishes.
func (c *Client) Probe(ctx context.Context, req probe.Request) (probe.Result, error) {
	var result probe.Result
	err := c.postJSON(ctx, "/api/probe", req, &result)
	return result, err
}

// =============================================================================
// Export
// =============================================================================

// Export streams a bulk extraction into w and returns the bytes written.
// The stream runs under ctx alone; the configured request timeout does not
// apply.
func (c *Client) Export(ctx context.Context, w io.Writer, q ExportQuery) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/export", q.values(), nil)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}
	return io.Copy(w, resp.Body)
}

// =============================================================================
// Transport
// =============================================================================

// callContext applies the configured timeout unless the caller already set
// a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dst interface{}) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, dst interface{}) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, http.MethodPost, path, nil, reader)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return decodeError(resp)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// drain discards the rest of the body so the connection is reusable.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
