package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
)

// JobStore keeps jobs in memory and enforces the job lifecycle: pending ->
// scraping -> completed|error, terminal jobs frozen, progress never moving
// backwards.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]gallery.Job
	ids   gallery.IDGenerator
	clock gallery.Clock
}

// NewJobStore constructs a JobStore.
func NewJobStore(ids gallery.IDGenerator, clock gallery.Clock) *JobStore {
	return &JobStore{
		jobs:  make(map[string]gallery.Job),
		ids:   ids,
		clock: clock,
	}
}

// Create validates cfg and stores a new pending job.
func (s *JobStore) Create(_ context.Context, cfg gallery.JobConfig) (gallery.Job, error) {
	if err := cfg.Validate(); err != nil {
		return gallery.Job{}, err
	}
	id, err := s.ids.NewID()
	if err != nil {
		return gallery.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := gallery.Job{
		ID:        id,
		URL:       cfg.URL,
		Config:    cfg,
		Status:    gallery.JobStatusPending,
		Records:   []gallery.ExtractedRecord{},
		CreatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return gallery.Job{}, fmt.Errorf("job %s already exists", id)
	}
	s.jobs[id] = job
	return cloneJob(job), nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(_ context.Context, id string) (gallery.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return gallery.Job{}, fmt.Errorf("%w: %s", gallery.ErrJobNotFound, id)
	}
	return cloneJob(job), nil
}

// List returns every job, oldest first.
func (s *JobStore) List(_ context.Context) ([]gallery.Job, error) {
	s.mu.RLock()
	out := make([]gallery.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, cloneJob(job))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Update applies the non-nil fields of update. Updates to a terminal job fail
// with ErrJobTerminal and illegal status changes with ErrInvalidTransition;
// a progress value lower than the stored one is ignored.
func (s *JobStore) Update(_ context.Context, id string, update gallery.JobUpdate) (gallery.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return gallery.Job{}, fmt.Errorf("%w: %s", gallery.ErrJobNotFound, id)
	}
	if job.Status.IsTerminal() {
		return gallery.Job{}, fmt.Errorf("update job %s: %w", id, gallery.ErrJobTerminal)
	}

	now := s.clock.Now()
	if update.Status != nil && *update.Status != job.Status {
		next := *update.Status
		if !gallery.CanTransition(job.Status, next) {
			return gallery.Job{}, fmt.Errorf("%w: %s -> %s", gallery.ErrInvalidTransition, job.Status, next)
		}
		job.Status = next
		if next == gallery.JobStatusScraping && job.StartedAt == nil {
			job.StartedAt = pointerTime(now)
		}
		if next.IsTerminal() {
			if update.CompletedAt != nil {
				job.CompletedAt = pointerTime(*update.CompletedAt)
			} else {
				job.CompletedAt = pointerTime(now)
			}
		}
	}
	if update.Progress != nil {
		p := clampProgress(*update.Progress)
		if p > job.Progress {
			job.Progress = p
		}
	}
	if update.Counters != nil {
		job.Counters = *update.Counters
	}
	if update.Records != nil {
		job.Records = append([]gallery.ExtractedRecord(nil), update.Records...)
	}
	if update.Error != nil {
		msg := *update.Error
		job.Error = &msg
	}
	s.jobs[id] = job
	return cloneJob(job), nil
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func cloneJob(job gallery.Job) gallery.Job {
	out := job
	out.Records = append(make([]gallery.ExtractedRecord, 0, len(job.Records)), job.Records...)
	if job.Error != nil {
		msg := *job.Error
		out.Error = &msg
	}
	return out
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
