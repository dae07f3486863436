// Package server exposes triage runs and their history over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"bugtriage/pkg/logx"
	"bugtriage/pkg/persistence"
	"bugtriage/pkg/triage"
)

// DefaultMaxConcurrency bounds in-flight triage runs when Options leave it unset.
const DefaultMaxConcurrency = 4

// Triager runs one triage. *triage.Orchestrator satisfies it.
type Triager interface {
	RunWithTrace(ctx context.Context, input string) (*triage.Trace, error)
}

// History reads stored runs. *persistence.DatabaseOperations satisfies it.
type History interface {
	ListRuns(ctx context.Context, filter persistence.RunFilter) ([]*persistence.Run, error)
	GetRun(ctx context.Context, runID string) (*persistence.Run, error)
}

// Options configures a Server.
type Options struct {
	MaxConcurrency int
	// Token, when set, is required as a bearer token on /v1 routes.
	Token string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server is the triage HTTP API.
type Server struct {
	triager  Triager
	history  History
	sem      *semaphore.Weighted
	token    string
	gatherer prometheus.Gatherer
	logger   *logx.Logger
	started  time.Time
}

// New creates a server. history may be nil, in which case the /v1/runs routes return 503.
func New(triager Triager, history History, opts Options) *Server {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		triager:  triager,
		history:  history,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		token:    opts.Token,
		gatherer: opts.Gatherer,
		logger:   logx.NewLogger("server"),
		started:  time.Now(),
	}
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/triage", s.requireToken(s.handleTriage))
	mux.HandleFunc("GET /v1/runs", s.requireToken(s.handleListRuns))
	mux.HandleFunc("GET /v1/runs/{id}", s.requireToken(s.handleGetRun))
	mux.HandleFunc("GET /v1/logs", s.requireToken(s.handleLogs))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// requireToken wraps an HTTP handler with bearer-token authentication when a token is set.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			s.logger.Warn("Rejected unauthenticated request from %s to %s", r.RemoteAddr, r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="triage"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting triage API on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("triage API server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down triage API")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("triage API shutdown failed: %w", err)
	}
	return nil
}
