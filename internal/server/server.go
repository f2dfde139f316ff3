// Package server provides the status HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ayusman/emberguard/internal/server/api"
	"github.com/ayusman/emberguard/internal/store"
)

// Config holds the server configuration. Nil fields disable their routes.
type Config struct {
	StaticDir    string
	Store        *store.Store
	Hub          *Hub
	Metrics      http.Handler
	ArtifactPath string
	// Monitor reports the scheduler state for /api/status
	Monitor func() any
	// AccessLog receives one line per request; nil disables it
	AccessLog io.Writer
	Logger    *slog.Logger
}

// Server represents the HTTP server.
type Server struct {
	config  Config
	router  *mux.Router
	handler http.Handler
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()

	var h http.Handler = s.router
	if config.AccessLog != nil {
		h = handlers.LoggingHandler(config.AccessLog, h)
	}
	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{config.Logger}),
	)(h)
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)

	if s.config.Store != nil {
		readings := api.NewReadingsHandler(s.config.Store)
		episodes := api.NewEpisodesHandler(s.config.Store)

		r.HandleFunc("/api/readings", readings.List).Methods(http.MethodGet)
		r.HandleFunc("/api/episodes", episodes.List).Methods(http.MethodGet)
		r.HandleFunc("/api/episodes/{id}", episodes.Get).Methods(http.MethodGet)
		r.HandleFunc("/api/episodes/{id}", episodes.Delete).Methods(http.MethodDelete)
	}

	if s.config.Hub != nil {
		r.Handle("/api/events", s.config.Hub)
	}

	if s.config.ArtifactPath != "" {
		r.Handle("/api/artifact", NewArtifactHandler(s.config.ArtifactPath)).Methods(http.MethodGet)
	}

	if s.config.Metrics != nil {
		r.Handle("/metrics", s.config.Metrics).Methods(http.MethodGet)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleStatus reports the latest reading and the scheduler state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"reading": nil,
		"monitor": nil,
	}

	if s.config.Store != nil {
		rd, err := api.NewReadingsHandler(s.config.Store).Latest(r)
		if err != nil {
			s.config.Logger.Error("status: latest reading", "error", err)
			http.Error(w, "Failed to load reading", http.StatusInternalServerError)
			return
		}
		if rd != nil {
			status["reading"] = rd
		}
	}
	if s.config.Monitor != nil {
		status["monitor"] = s.config.Monitor()
	}

	writeJSON(w, status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// recoveryLogger routes recovered panics to slog.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("http handler panic", "panic", v)
}
