package handlers

import (
	"context"
	"net/http"

	"memberpay/internal/api/middleware"
	apierrors "memberpay/internal/pkg/errors"
	"memberpay/internal/workers"
)

// JobsHandler starts reconciliation jobs on demand. Jobs run on the
// server's base context, not the request's, so they outlive the response.
type JobsHandler struct {
	base   context.Context
	runner *workers.Runner
	jobs   map[string]workers.Job
}

func NewJobsHandler(base context.Context, runner *workers.Runner, jobs map[string]workers.Job) *JobsHandler {
	return &JobsHandler{base: base, runner: runner, jobs: jobs}
}

func (h *JobsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	name := param(r, "job")
	job, ok := h.jobs[name]
	if !ok {
		apierrors.WriteError(w, http.StatusNotFound, apierrors.ErrCodeNotFound, "Unknown job", map[string]string{"job": name})
		return
	}

	if !h.runner.Go(h.base, name, job) {
		apierrors.WriteError(w, http.StatusConflict, apierrors.ErrCodeConflict, "Job already running", map[string]string{"job": name})
		return
	}

	subject := ""
	if claims := middleware.ClaimsFrom(r.Context()); claims != nil {
		subject = claims.Subject
	}
	apierrors.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job":          name,
		"status":       "started",
		"triggered_by": subject,
	})
}
