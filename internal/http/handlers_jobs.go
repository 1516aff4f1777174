package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dobkap/internal/log"
)

// handleStartJob starts a sync, or returns the one already running.
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	job, started := s.sync.StartSync(r.Context())
	w.Header().Set("Location", "/api/jobs/"+job.ID())
	if !started {
		writeJSON(w, http.StatusOK, jobStartResponse{ID: job.ID(), Started: false})
		return
	}
	log.FromContext(r.Context()).Info("Sync job started", log.FieldJobID, job.ID())
	writeJSON(w, http.StatusAccepted, jobStartResponse{ID: job.ID(), Started: true})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.jobs.Cancel(id) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	log.FromContext(r.Context()).Info("Sync job cancel requested", log.FieldJobID, id)
	w.WriteHeader(http.StatusNoContent)
}
