// Package worker implements the job execution loop fed by the queue.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/metrics"
)

// Runner executes one job to completion; scrape.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, job gallery.Job) (gallery.Job, error)
}

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds a single job; zero disables the limit.
	JobTimeout time.Duration
}

// Worker consumes queue items and runs them one at a time.
type Worker struct {
	id       int
	queue    gallery.Queue
	jobStore gallery.JobStore
	runner   Runner
	cancels  *Registry
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. cancels may be nil when jobs cannot be cancelled
// individually.
func New(
	id int,
	queue gallery.Queue,
	jobStore gallery.JobStore,
	runner Runner,
	cancels *Registry,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cancels == nil {
		cancels = NewRegistry()
	}
	return &Worker{
		id:       id,
		queue:    queue,
		jobStore: jobStore,
		runner:   runner,
		cancels:  cancels,
		cfg:      cfg,
		logger:   logger.Named("worker").With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, gallery.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item gallery.QueueItem) {
	job, err := w.jobStore.Get(ctx, item.JobID)
	if err != nil {
		w.logger.Error("load job failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	if job.Status != gallery.JobStatusPending {
		w.logger.Warn("skipping job that is not pending",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
		)
		return
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if w.cfg.JobTimeout > 0 {
		var stop context.CancelFunc
		jobCtx, stop = context.WithTimeout(jobCtx, w.cfg.JobTimeout)
		defer stop()
	}
	w.cancels.Register(job.ID, cancel)
	defer w.cancels.Remove(job.ID)

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	started := time.Now()
	final, err := w.runner.Run(jobCtx, job)
	if err != nil {
		w.logger.Warn("job finished with error",
			zap.String("job_id", job.ID),
			zap.String("status", string(final.Status)),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(final.Status)),
		zap.Int("records", len(final.Records)),
		zap.Duration("elapsed", time.Since(started)),
	)
}
