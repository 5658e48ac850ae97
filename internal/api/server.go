// Package api serves read-only progress endpoints while a run is in flight.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dgallion1/gccquiz/internal/dataset"
	"github.com/dgallion1/gccquiz/internal/generate"
	"github.com/dgallion1/gccquiz/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP status server for a run.
type Server struct {
	router  chi.Router
	jobs    *pipeline.JobStore
	gen     *generate.Generator
	summary *dataset.Summary
	log     *slog.Logger
	token   string
}

// NewServer creates and configures the HTTP server. An empty token leaves the
// /api routes open.
func NewServer(jobs *pipeline.JobStore, gen *generate.Generator, summary *dataset.Summary, log *slog.Logger, token string) *Server {
	s := &Server{
		jobs:    jobs,
		gen:     gen,
		summary: summary,
		log:     log,
		token:   token,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.token != "" {
			r.Use(AuthMiddleware(s.token, s.log))
		}

		r.Get("/api/files", s.handleListFiles)
		r.Get("/api/files/status", s.handleFileStatus)
		r.Get("/api/summary", s.handleSummary)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
