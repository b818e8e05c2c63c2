package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/export"
	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	idgen "github.com/JakeFAU/gallery-scraper/internal/id/uuid"
)

const (
	defaultScrollDelayMs = 1500
	enqueueTimeout       = 5 * time.Second
	defaultJobLimit      = 50
	maxJobLimit          = 500
)

type createJobRequest struct {
	URL            string `json:"url"`
	MaxItems       *int   `json:"maxItems"`
	ExtractDetails *bool  `json:"extractDetails"`
	AutoScroll     *bool  `json:"autoScroll"`
	ScrollDelayMs  *int   `json:"scrollDelayMs"`
}

func (req createJobRequest) toConfig() gallery.JobConfig {
	return gallery.JobConfig{
		URL:            strings.TrimSpace(req.URL),
		MaxItems:       valueOrDefault(req.MaxItems, 0),
		ExtractDetails: valueOrDefault(req.ExtractDetails, true),
		AutoScroll:     valueOrDefault(req.AutoScroll, true),
		ScrollDelayMs:  valueOrDefault(req.ScrollDelayMs, defaultScrollDelayMs),
	}
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

// jobSummary is the list view of a job; records are served by getJob and the
// export endpoint.
type jobSummary struct {
	ID          string              `json:"id"`
	URL         string              `json:"url"`
	Status      gallery.JobStatus   `json:"status"`
	Progress    float64             `json:"progress"`
	Counters    gallery.JobCounters `json:"counters"`
	Error       *string             `json:"error"`
	CreatedAt   time.Time           `json:"createdAt"`
	StartedAt   *time.Time          `json:"startedAt,omitempty"`
	CompletedAt *time.Time          `json:"completedAt,omitempty"`
}

func toSummary(job gallery.Job) jobSummary {
	return jobSummary{
		ID:          job.ID,
		URL:         job.URL,
		Status:      job.Status,
		Progress:    job.Progress,
		Counters:    job.Counters,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.jobStore.Create(r.Context(), req.toConfig())
	if err != nil {
		if errors.Is(err, gallery.ErrInvalidConfiguration) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("create job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	item := gallery.QueueItem{JobID: job.ID, Submitted: s.clock.Now().Unix()}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		s.abandon(job.ID, fmt.Errorf("enqueue job: %w", err))
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, "job queue unavailable")
		return
	}
	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("url", job.URL),
		zap.String("request_id", requestID(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID, "status": string(job.Status)})
}

// abandon moves a job that never reached the queue to the error state.
func (s *Server) abandon(jobID string, cause error) {
	ctx := context.Background()
	scraping := gallery.JobStatusScraping
	failed := gallery.JobStatusError
	msg := cause.Error()
	if _, err := s.jobStore.Update(ctx, jobID, gallery.JobUpdate{Status: &scraping}); err == nil {
		_, err = s.jobStore.Update(ctx, jobID, gallery.JobUpdate{Status: &failed, Error: &msg})
		if err == nil {
			return
		}
	}
	s.logger.Error("could not mark unqueued job failed", zap.String("job_id", jobID), zap.Error(cause))
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultJobLimit, maxJobLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var filter *gallery.JobStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, perr := parseStatus(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		filter = &status
	}
	jobs, err := s.jobStore.List(r.Context())
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	out := make([]jobSummary, 0, len(jobs))
	for _, job := range jobs {
		if filter == nil || job.Status == *filter {
			out = append(out, toSummary(job))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": page(out, limit, offset)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status.IsTerminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("job already %s", job.Status))
		return
	}
	running := s.dispatcher.Cancel(job.ID)
	s.logger.Info("job cancel requested", zap.String("job_id", job.ID), zap.Bool("running", running))
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID, "status": "canceling"})
}

func (s *Server) exportJob(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if !job.Status.IsTerminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status))
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(job.ID, format)))
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, job, format); err != nil {
		s.logger.Error("export failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func exportFilename(jobID string, f export.Format) string {
	ext := string(f)
	if f == export.FormatTable {
		ext = "txt"
	}
	return "gallery-" + jobID + "." + ext
}

// loadJob resolves {job_id}, writing 404 or 500 itself on failure.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (gallery.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	if !idgen.Valid(jobID) {
		writeError(w, http.StatusNotFound, "job not found")
		return gallery.Job{}, false
	}
	job, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, gallery.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return gallery.Job{}, false
		}
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return gallery.Job{}, false
	}
	return job, true
}

func parseStatus(input string) (gallery.JobStatus, error) {
	switch status := gallery.JobStatus(strings.ToLower(input)); status {
	case gallery.JobStatusPending, gallery.JobStatusScraping, gallery.JobStatusCompleted, gallery.JobStatusError:
		return status, nil
	default:
		return "", errors.New("invalid status")
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
