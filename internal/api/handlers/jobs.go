package handlers

import (
	"net/http"

	"github.com/avflow/avflow/internal/scheduler"
	"github.com/avflow/avflow/pkg/logger"
)

type jobStatsProvider interface {
	Stats() map[string]scheduler.JobStats
}

// JobsHandler serves scheduler run history.
type JobsHandler struct {
	scheduler jobStatsProvider
	logger    *logger.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(sched jobStatsProvider, log *logger.Logger) *JobsHandler {
	return &JobsHandler{
		scheduler: sched,
		logger:    log,
	}
}

// GetStats returns per-job run statistics.
// GET /api/v1/jobs
func (h *JobsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.Stats())
}
