// Package server exposes the runner, the session manager and the trace
// visualizer over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/michaelbrown/javarena/internal/config"
	"github.com/michaelbrown/javarena/internal/history"
	"github.com/michaelbrown/javarena/internal/logging"
	"github.com/michaelbrown/javarena/internal/sandbox"
	"github.com/michaelbrown/javarena/internal/session"
	"github.com/michaelbrown/javarena/internal/storage"
	"github.com/michaelbrown/javarena/internal/toolchain"
)

// Reviewer explains an error in prose. An empty answer means none.
type Reviewer interface {
	Review(ctx context.Context, errText, source string, compile bool) string
}

// Deps are the components the server routes to. Reviewer and Recorder
// may be nil.
type Deps struct {
	Runner    *sandbox.Runner
	Sessions  *session.Manager
	Store     storage.Store
	Toolchain toolchain.Provider
	Reviewer  Reviewer
	Recorder  *history.Recorder
	Logger    *slog.Logger
}

// Server is the HTTP server for the playground API.
type Server struct {
	cfg     *config.Config
	deps    Deps
	limiter *rateLimiter
	router  chi.Router
	http    *http.Server
	stop    context.CancelFunc
	log     *slog.Logger
}

// New creates a Server.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: newRateLimiter(cfg.RateLimit.Window, cfg.RateLimit.Max),
		router:  chi.NewRouter(),
		log:     logging.Or(deps.Logger),
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Route("/api", func(r chi.Router) {
		// WebSocket (no JSON content-type)
		r.Get("/interactive", s.handleInteractive)

		r.Group(func(r chi.Router) {
			r.Use(jsonContentType)
			if n := s.cfg.Server.MaxBodyBytes; n > 0 {
				r.Use(middleware.RequestSize(n))
			}

			r.Get("/health", s.handleHealth)
			r.Get("/info", s.handleInfo)
			r.Post("/compile", s.handleCompile)
			r.Post("/visualize", s.handleVisualize)

			r.With(s.limiter.middleware).Post("/share", s.handleCreateShare)
			r.Get("/share/{id}", s.handleGetShare)

			r.Get("/executions", s.handleListExecutions)
			r.Get("/executions/{id}", s.handleGetExecution)
		})
	})

	// SPA fallback
	r.Handle("/*", spaHandler(s.cfg.Server.StaticDir))
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) originAllowed(origin string) bool {
	allowed := s.cfg.Server.AllowedOrigins
	return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			if slices.Contains(s.cfg.Server.AllowedOrigins, "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// runBackground starts the session reaper, the expired-share cleanup and
// the rate limiter sweep. They stop when ctx is done.
func (s *Server) runBackground(ctx context.Context) {
	if s.deps.Sessions != nil {
		go s.deps.Sessions.RunReaper(ctx, s.cfg.Sessions.SweepInterval)
	}
	if s.deps.Store != nil && s.cfg.Shares.CleanupInterval > 0 {
		go s.cleanupShares(ctx, s.cfg.Shares.CleanupInterval)
	}
	go s.limiter.run(ctx, s.cfg.RateLimit.Window)
}

func (s *Server) cleanupShares(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.deps.Store.DeleteExpiredShares(ctx, now)
			if err != nil {
				s.log.Warn("cleaning up expired shares", "err", err)
				continue
			}
			s.log.Info("cleaned up expired shares", "count", n)
		}
	}
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.runBackground(ctx)

	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("javarena server starting", "url", "http://localhost"+addr)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops background work, terminates live sessions and gracefully
// shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")
	if s.stop != nil {
		s.stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if s.deps.Sessions != nil {
		if err := s.deps.Sessions.CloseAll(shutdownCtx); err != nil {
			s.log.Warn("sessions still running at shutdown", "err", err)
		}
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(shutdownCtx)
}
