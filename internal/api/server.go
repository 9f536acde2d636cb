// Package api serves the tracker over HTTP as JSON. Requests authenticate
// with "Authorization: Bearer <api key>"; reads of public projects also work
// anonymously.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/store"
	"github.com/marcus/taskflow/internal/workflow"
)

// KeyStore authenticates API keys and manages a user's own keys.
type KeyStore interface {
	VerifyAPIKey(ctx context.Context, plaintext string) (*store.APIKey, *models.User, error)
	GenerateAPIKey(ctx context.Context, userID, name string, expiresAt *time.Time) (string, *store.APIKey, error)
	ListAPIKeys(ctx context.Context, userID string) ([]*store.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID, userID string) error
}

// Pinger reports database reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	config      Config
	http        *http.Server
	svc         *workflow.Service
	keys        KeyStore
	db          Pinger
	metrics     *Metrics
	rateLimiter *RateLimiter
}

// NewServer creates a new Server with the given config and collaborators.
func NewServer(cfg Config, svc *workflow.Service, keys KeyStore, db Pinger) (*Server, error) {
	if svc == nil || keys == nil || db == nil {
		return nil, errors.New("api: service, key store and pinger are required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	s := &Server{
		config:      cfg,
		svc:         svc,
		keys:        keys,
		db:          db,
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Run listens on the configured address and serves until ctx is cancelled,
// then drains in-flight requests for up to ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("listening", "addr", ln.Addr().String(), "base_url", s.config.BaseURL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.rateLimiter.Run(gctx, 5*time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown gracefully stops the server, bounded by ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	read := func(h http.HandlerFunc) http.HandlerFunc {
		return s.optionalAuth(s.withRateLimit(h, "read", s.config.RateLimitRead))
	}
	authedRead := func(h http.HandlerFunc) http.HandlerFunc {
		return s.requireAuth(s.withRateLimit(h, "read", s.config.RateLimitRead))
	}
	write := func(h http.HandlerFunc) http.HandlerFunc {
		return s.requireAuth(s.withRateLimit(h, "write", s.config.RateLimitWrite))
	}

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Caller & API keys
	mux.HandleFunc("GET /v1/me", authedRead(s.handleMe))
	mux.HandleFunc("GET /v1/me/keys", authedRead(s.handleListKeys))
	mux.HandleFunc("POST /v1/me/keys", write(s.handleCreateKey))
	mux.HandleFunc("DELETE /v1/me/keys/{id}", write(s.handleRevokeKey))

	// Users
	mux.HandleFunc("GET /v1/users", authedRead(s.handleListUsers))
	mux.HandleFunc("POST /v1/users", write(s.handleCreateUser))
	mux.HandleFunc("GET /v1/users/{id}", authedRead(s.handleGetUser))
	mux.HandleFunc("PATCH /v1/users/{id}/role", write(s.handleSetSystemRole))

	// Projects
	mux.HandleFunc("GET /v1/projects", read(s.handleListProjects))
	mux.HandleFunc("POST /v1/projects", write(s.handleCreateProject))
	mux.HandleFunc("GET /v1/projects/{id}", read(s.handleGetProject))
	mux.HandleFunc("PATCH /v1/projects/{id}", write(s.handleUpdateProject))
	mux.HandleFunc("DELETE /v1/projects/{id}", write(s.handleDeleteProject))
	mux.HandleFunc("GET /v1/projects/{id}/issues", read(s.handleListProjectIssues))

	// Permissions
	mux.HandleFunc("GET /v1/projects/{id}/permissions", authedRead(s.handleListPermissions))
	mux.HandleFunc("GET /v1/projects/{id}/permissions/{userID}", authedRead(s.handleGetPermission))
	mux.HandleFunc("POST /v1/projects/{id}/permissions/{userID}", write(s.handleAddCollaborator))
	mux.HandleFunc("PUT /v1/projects/{id}/permissions/{userID}", write(s.handleUpdateCollaborator))
	mux.HandleFunc("DELETE /v1/projects/{id}/permissions/{userID}", write(s.handleRemoveCollaborator))

	// Issues
	mux.HandleFunc("POST /v1/issues", write(s.handleCreateIssue))
	mux.HandleFunc("GET /v1/issues/search", read(s.handleSearchIssues))
	mux.HandleFunc("GET /v1/issues/{id}", read(s.handleGetIssue))
	mux.HandleFunc("PUT /v1/issues/{id}", write(s.handleUpdateIssue))
	mux.HandleFunc("DELETE /v1/issues/{id}", write(s.handleDeleteIssue))
	mux.HandleFunc("GET /v1/issues/{id}/subtasks", read(s.handleListSubtasks))
	mux.HandleFunc("POST /v1/issues/{id}/convert-to-subtask", write(s.handleConvertToSubtask))
	mux.HandleFunc("POST /v1/issues/{id}/convert-to-issue", write(s.handleConvertToIssue))

	// Comments
	mux.HandleFunc("GET /v1/issues/{id}/comments", read(s.handleListComments))
	mux.HandleFunc("POST /v1/comments", write(s.handleCreateComment))
	mux.HandleFunc("PUT /v1/comments/{id}", write(s.handleUpdateComment))
	mux.HandleFunc("DELETE /v1/comments/{id}", write(s.handleDeleteComment))

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, accessMiddleware(s.metrics), corsMiddleware(s.config.CORSAllowedOrigins), maxBytesMiddleware(s.config.MaxBodyBytes))
}

// handleHealth returns a health check response, pinging the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		logFor(r.Context()).Warn("health check", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
