// Package server exposes the meshing pipeline over HTTP.
//
// Clients upload session descriptions as JSON or TOML, mesh them, and fetch
// the results in any output format:
//
//	POST   /v1/sessions                 store a description
//	GET    /v1/sessions                 list stored session IDs
//	GET    /v1/sessions/{id}            fetch a stored description
//	DELETE /v1/sessions/{id}            delete a stored description
//	POST   /v1/sessions/{id}/mesh       mesh a stored description
//	POST   /v1/mesh                     mesh a description in one call
//	GET    /v1/meshes                   list stored meshes
//	GET    /v1/meshes/{id}              fetch a mesh summary
//	GET    /v1/meshes/{id}/{format}     render a stored mesh
//	DELETE /v1/meshes/{id}              delete a stored mesh
//	GET    /healthz                     liveness probe
//
// Descriptions must be self-contained: fields that reference files are
// rejected, since the server has no access to the client's file system.
//
// Failures are reported as JSON carrying the error code, category, stage
// and offending entity of the underlying error.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/quadmesh/pkg/observability"
	"github.com/matzehuels/quadmesh/pkg/pipeline"
	"github.com/matzehuels/quadmesh/pkg/session"
	"github.com/matzehuels/quadmesh/pkg/store"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxBody         = 4 << 20
	DefaultTimeout         = 2 * time.Minute
	DefaultCleanupInterval = time.Hour
	DefaultListLimit       = 50
)

// Config configures a Server.
type Config struct {
	Runner   *pipeline.Runner
	Sessions session.Store
	Meshes   store.Store
	Logger   *log.Logger

	// MaxBody bounds request bodies in bytes.
	MaxBody int64

	// Timeout bounds each request, including the pipeline run it starts.
	Timeout time.Duration

	// SessionTTL is how long uploaded descriptions are kept.
	SessionTTL time.Duration

	// CleanupInterval is how often expired sessions are purged.
	CleanupInterval time.Duration
}

// Server serves the meshing API.
type Server struct {
	cfg Config
}

// New creates a server. Missing stores default to in-memory ones.
func New(cfg Config) *Server {
	if cfg.Runner == nil {
		cfg.Runner = pipeline.NewRunner(nil, nil, cfg.Logger)
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewMemoryStore()
	}
	if cfg.Meshes == nil {
		cfg.Meshes = store.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	return &Server{cfg: cfg}
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Timeout))

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/mesh", s.meshDescription)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Get("/", s.listSessions)
			r.Get("/{id}", s.getSession)
			r.Delete("/{id}", s.deleteSession)
			r.Post("/{id}/mesh", s.meshSession)
		})

		r.Route("/meshes", func(r chi.Router) {
			r.Get("/", s.listMeshes)
			r.Get("/{id}", s.getMesh)
			r.Get("/{id}/{format}", s.renderMesh)
			r.Delete("/{id}", s.deleteMesh)
		})
	})
	return r
}

// observe reports requests to the HTTP hooks and the logger.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		hooks.OnResponse(r.Context(), r.Method, route, status, elapsed)
		s.cfg.Logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed.Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Expired sessions are purged in the background.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.cfg.Logger.Info("Listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.cleanup(gctx)
		return nil
	})
	return g.Wait()
}

// cleanup purges expired sessions until ctx is done.
func (s *Server) cleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.cfg.Sessions.Cleanup(ctx); err != nil {
				s.cfg.Logger.Warn("Session cleanup failed", "err", err)
			}
		}
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
