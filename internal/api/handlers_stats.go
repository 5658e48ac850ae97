package api

import (
	"net/http"
	"strings"

	"github.com/dgallion1/gccquiz/internal/pipeline"
)

// handleListFiles lists every file job, optionally filtered by country and status.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	status := r.URL.Query().Get("status")

	files := []pipeline.FileSnapshot{}
	for _, f := range s.jobs.Snapshots() {
		if country != "" && !strings.EqualFold(f.Country, country) {
			continue
		}
		if status != "" && string(f.Status) != status {
			continue
		}
		files = append(files, f)
	}
	writeJSON(w, map[string]any{"files": files, "count": len(files)})
}

func (s *Server) handleFileStatus(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		jsonError(w, "path query parameter is required", http.StatusBadRequest)
		return
	}
	job := s.jobs.Get(path)
	if job == nil {
		jsonError(w, "file not found", http.StatusNotFound)
		return
	}
	writeJSON(w, job.Snapshot())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.summary == nil {
		jsonError(w, "summary unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.summary.Snapshot())
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.gen == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.gen.Stats())
}
