package service

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/CodexForgeBR/cull-engine/internal/providers"
	"github.com/CodexForgeBR/cull-engine/internal/telemetry"
)

// maxJobBody caps POST /jobs request bodies.
const maxJobBody = 32 << 20

// Catalog lists providers for GET /providers.
type Catalog interface {
	SortByCost() []providers.Capability
}

// Server exposes jobs, telemetry and progress over HTTP.
type Server struct {
	Service   *Service
	Telemetry *telemetry.Store
	Catalog   Catalog
	// Progress serves the websocket progress feed on /ws. May be nil.
	Progress http.Handler
	// JobContext bounds background jobs; jobs outlive their request.
	JobContext context.Context
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.Progress != nil {
		mux.Handle("GET /ws", s.Progress)
	}
	mux.HandleFunc("GET /telemetry", s.handleTelemetry)
	mux.HandleFunc("GET /providers", s.handleProviders)
	mux.HandleFunc("POST /jobs", s.handleSubmit)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleJob)
	return mux
}

func (s *Server) handleTelemetry(w http.ResponseWriter, _ *http.Request) {
	snaps := []telemetry.Snapshot{}
	if s.Telemetry != nil {
		snaps = s.Telemetry.Snapshots()
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	caps := []providers.Capability{}
	if s.Catalog != nil {
		caps = s.Catalog.SortByCost()
	}
	writeJSON(w, http.StatusOK, caps)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var job Job
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJobBody)).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job: "+err.Error())
		return
	}
	job.ID = ""

	ctx := s.JobContext
	if ctx == nil {
		ctx = context.Background()
	}
	id, err := s.Service.Submit(ctx, job)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Location", "/jobs/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "state": StateRunning})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Service.Jobs())
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	st, ok := s.Service.Status(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
