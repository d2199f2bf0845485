package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"whisperclient/db"
	"whisperclient/pkg/slg"

	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &errorResponse{Error: msg})
}

func (api *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (api *API) listJobs(w http.ResponseWriter, r *http.Request) {
	if api.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job ledger is disabled")
		return
	}

	jobs, err := api.jobs.ListJobs(r.Context())
	if err != nil {
		slg.GetSlog(r.Context()).Error("failed to list jobs", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	if jobs == nil {
		jobs = []*db.Job{}
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (api *API) getJob(w http.ResponseWriter, r *http.Request) {
	if api.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job ledger is disabled")
		return
	}

	hash := chi.URLParam(r, "hash")

	job, err := api.jobs.GetJob(r.Context(), hash)
	if err != nil {
		if errors.Is(err, db.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}

		slg.GetSlog(r.Context()).Error("failed to get job", "hash", hash, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	writeJSON(w, http.StatusOK, job)
}
