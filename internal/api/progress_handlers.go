package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/progress"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 500
	progressTimeout   = 3 * time.Second
)

// TimelineReader serves the recorded progress events of a job.
type TimelineReader interface {
	Events(ctx context.Context, jobID string, limit, offset int) ([]progress.Event, error)
}

// ProgressHandler exposes the read-only job timeline endpoint.
type ProgressHandler struct {
	timeline TimelineReader
	jobs     gallery.JobStore
	timeout  time.Duration
	logger   *zap.Logger
}

// NewProgressHandler wires the timeline, job store and logger.
func NewProgressHandler(timeline TimelineReader, jobs gallery.JobStore, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		timeline: timeline,
		jobs:     jobs,
		timeout:  progressTimeout,
		logger:   logger,
	}
}

// ListEvents handles GET /v1/jobs/{job_id}/events?limit=&offset=. It returns
// {"events": [...]} oldest first, 400 for invalid paging, 404 for unknown
// jobs, 503 when no timeline is configured, or 500 on store errors.
func (h *ProgressHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.timeline == nil {
		writeError(w, http.StatusServiceUnavailable, "progress timeline unavailable")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultEventLimit, maxEventLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if h.jobs != nil {
		if _, err := h.jobs.Get(ctx, jobID); err != nil {
			if errors.Is(err, gallery.ErrJobNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			h.logger.Error("get job failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load job")
			return
		}
	}
	events, err := h.timeline.Events(ctx, jobID, limit, offset)
	if err != nil {
		h.logger.Error("list events failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
