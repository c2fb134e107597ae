// Package transport exposes the candidate-generation pipeline over HTTP:
// job control (start/get/cancel/list) and a websocket stream of
// JobProgress for whichever run a client is watching.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/optionagent/agent/internal/run"
)

// RunStore is the history-query dependency the list endpoint needs; the
// get endpoint reads the in-process job registry instead.
type RunStore interface {
	ListRuns(ctx context.Context, userID string, limit int) ([]RunSummary, error)
}

// RunSummary mirrors storage.RunSummary so transport doesn't need to
// import the storage package's concrete type.
type RunSummary struct {
	ID        string
	Status    string
	Mode      string
	StartedAt time.Time
}

// Config configures the HTTP server.
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	Controller *run.Controller
	Store      RunStore
	Hub        *Hub // must be the same Hub passed as the Controller's ProgressSink
}

// Server is the chi-based HTTP API for the candidate-generation agent.
type Server struct {
	router *chi.Mux
	srv    *http.Server
	log    zerolog.Logger

	controller *run.Controller
	store      RunStore
	hub        *Hub
	jobs       *jobRegistry
}

// New builds a Server with routes and middleware wired.
func New(cfg Config) *Server {
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub()
	}
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "transport").Logger(),
		controller: cfg.Controller,
		store:      cfg.Store,
		hub:        hub,
		jobs:       newJobRegistry(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the websocket stream holds the connection open
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(chimiddleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(chimiddleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleStartRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{runID}", s.handleGetRun)
		r.Post("/{runID}/cancel", s.handleCancelRun)
		r.Get("/{runID}/stream", s.handleStream)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", ww.Status()).Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting http server")
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http server")
	return s.srv.Shutdown(ctx)
}
