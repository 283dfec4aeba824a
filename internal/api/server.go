// Package api exposes the HTTP query and trigger surface.
//
// Every endpoint is read-only against the pipeline except the trigger
// operations (sessions, probe), which never write events themselves; events
// only ever enter through the sampler. Responses are JSON apart from the
// export stream.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xtxerr/pulse/internal/config"
	"github.com/xtxerr/pulse/internal/errors"
	"github.com/xtxerr/pulse/internal/export"
	"github.com/xtxerr/pulse/internal/logging"
	"github.com/xtxerr/pulse/internal/pipeline"
	"github.com/xtxerr/pulse/internal/probe"
	"github.com/xtxerr/pulse/internal/query"
	"github.com/xtxerr/pulse/internal/session"
	"github.com/xtxerr/pulse/internal/sysres"
)

// Deps holds the components the API serves.
type Deps struct {
	Query     *query.Service
	Pipeline  *pipeline.Pipeline
	Sessions  *session.Manager
	Probe     *probe.Runner
	Export    *export.Exporter
	Resources sysres.Provider
}

// Server is the HTTP API server.
type Server struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger

	http *http.Server
	addr string
}

// New creates an API server. Start binds the listener.
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{
		cfg:  cfg,
		deps: deps,
		log:  logging.Component("api"),
	}
}

// Handler builds the route tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests, s.recoverPanics)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/livez", s.handleLivez).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/events", s.handleEvents).Methods("GET")
	api.HandleFunc("/summary", s.handleSummary).Methods("GET")
	api.HandleFunc("/dropped", s.handleDropped).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/system/resources", s.handleResources).Methods("GET")
	api.HandleFunc("/sessions", s.handleSessionList).Methods("GET")
	api.HandleFunc("/sessions", s.handleSessionStart).Methods("POST")
	api.HandleFunc("/sessions/{id}/stop", s.handleSessionStop).Methods("POST")
	api.HandleFunc("/probe", s.handleProbe).Methods("POST")
	api.HandleFunc("/export", s.handleExport).Methods("GET")

	return r
}

// Start binds the configured address and serves in the background. A bind
// failure is returned synchronously so the daemon can abort startup.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.API.Listen)
	if err != nil {
		return errors.Wrap(err, "api listen")
	}
	s.addr = ln.Addr().String()

	s.http = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.API.ReadTimeout(),
		WriteTimeout: s.cfg.API.WriteTimeout(),
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server failed", "error", err)
		}
	}()

	s.log.Info("api listening", "address", s.addr)
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown drains in-flight requests within the configured grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, s.cfg.API.ShutdownTimeout())
	defer cancel()
	return s.http.Shutdown(sctx)
}
