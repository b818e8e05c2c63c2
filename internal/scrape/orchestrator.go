// Package scrape runs one gallery job end to end: it opens a browser session,
// discovers item references on the listing page, extracts a record per item
// and drives the job through its lifecycle.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/discovery"
	"github.com/JakeFAU/gallery-scraper/internal/extract"
	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/metrics"
	"github.com/JakeFAU/gallery-scraper/internal/netcache"
	"github.com/JakeFAU/gallery-scraper/internal/progress"
	"github.com/JakeFAU/gallery-scraper/internal/sanitize"
)

// Session is the browser tab a job runs in.
type Session interface {
	discovery.Page
	extract.DetailLoader
	Navigate(ctx context.Context, url string, profile gallery.Profile) error
	Metadata() *netcache.Cache
	Close()
}

// SiteLimiter paces listing loads per host.
type SiteLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Opener opens a fresh session for a job.
type Opener func(ctx context.Context, jobID string) (Session, error)

// Default inter-item pacing.
const (
	DefaultMinItemDelay = time.Second
	DefaultMaxItemDelay = 3 * time.Second
)

// Config holds item pacing and the extractor selectors.
type Config struct {
	MinItemDelay time.Duration
	MaxItemDelay time.Duration
	Extract      extract.Config
}

// Orchestrator executes scrape jobs. It is safe for concurrent use; each Run
// owns its own session.
type Orchestrator struct {
	cfg       Config
	store     gallery.JobStore
	open      Opener
	discovery *discovery.Engine
	san       *sanitize.Sanitizer
	emitter   progress.Emitter
	limiter   SiteLimiter
	clock     gallery.Clock
	logger    *zap.Logger
	sleep     func(context.Context, time.Duration) error
	jitter    func(n int64) int64
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter sends progress events to em.
func WithEmitter(em progress.Emitter) Option {
	return func(o *Orchestrator) {
		if em != nil {
			o.emitter = em
		}
	}
}

// WithSiteLimiter makes each job wait for its host's token before loading the
// listing page.
func WithSiteLimiter(l SiteLimiter) Option {
	return func(o *Orchestrator) {
		o.limiter = l
	}
}

// WithClock overrides the time source.
func WithClock(c gallery.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithSleep overrides the context-aware sleep used between items.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithSanitizer overrides the sanitizer handed to extractors.
func WithSanitizer(san *sanitize.Sanitizer) Option {
	return func(o *Orchestrator) {
		if san != nil {
			o.san = san
		}
	}
}

// New wires an Orchestrator.
func New(
	cfg Config,
	store gallery.JobStore,
	open Opener,
	engine *discovery.Engine,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinItemDelay <= 0 && cfg.MaxItemDelay <= 0 {
		cfg.MinItemDelay, cfg.MaxItemDelay = DefaultMinItemDelay, DefaultMaxItemDelay
	}
	if cfg.MaxItemDelay < cfg.MinItemDelay {
		cfg.MaxItemDelay = cfg.MinItemDelay
	}
	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		open:      open,
		discovery: engine,
		san:       sanitize.Default(),
		emitter:   progress.Discard,
		clock:     systemClock{},
		logger:    logger.Named("scrape"),
		sleep:     sleepContext,
		jitter:    rand.Int64N,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes job and returns its final state. Failures outside the per-item
// loop, cancellation included, leave the job in the error state and are also
// returned.
func (o *Orchestrator) Run(ctx context.Context, job gallery.Job) (gallery.Job, error) {
	r := &run{
		o:     o,
		job:   job,
		site:  metrics.SanitizeSite(job.URL),
		start: o.clock.Now(),
		log:   o.logger.With(zap.String("job_id", job.ID), zap.String("url", job.URL)),
	}

	scraping := gallery.JobStatusScraping
	if _, err := o.store.Update(ctx, job.ID, gallery.JobUpdate{Status: &scraping}); err != nil {
		return job, fmt.Errorf("start job %s: %w", job.ID, err)
	}
	metrics.ObserveJob(string(gallery.JobStatusScraping))
	r.emit(progress.Event{Stage: progress.StageJobStart, URL: job.URL, Target: job.Config.MaxItems})
	r.log.Info("job started",
		zap.Int("max_items", job.Config.MaxItems),
		zap.Bool("auto_scroll", job.Config.AutoScroll),
		zap.Bool("extract_details", job.Config.ExtractDetails),
	)

	if err := r.execute(ctx); err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %w", err, cause)
		}
		return r.fail(err)
	}
	return r.complete()
}

type run struct {
	o        *Orchestrator
	job      gallery.Job
	site     string
	start    time.Time
	log      *zap.Logger
	counters gallery.JobCounters
	records  []gallery.ExtractedRecord
}

func (r *run) execute(ctx context.Context) error {
	sess, err := r.o.open(ctx, r.job.ID)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	if r.o.limiter != nil {
		if err := r.o.limiter.Wait(ctx, r.job.URL); err != nil {
			return err
		}
	}
	if err := sess.Navigate(ctx, r.job.URL, gallery.ProfileListing); err != nil {
		return fmt.Errorf("load listing: %w", err)
	}

	refs, thumbs, err := r.discover(ctx, sess)
	if err != nil {
		return err
	}
	return r.extractAll(ctx, sess, refs, thumbs)
}

// discover performs an initial sweep, the discovery loop when auto-scroll is
// on, and a final sweep. The collector applies the cap in discovery order.
func (r *run) discover(ctx context.Context, sess Session) ([]gallery.ItemReference, func(string) string, error) {
	cfg := r.job.Config
	col := discovery.NewCollector(r.job.URL, cfg.MaxItems)
	engine := r.o.discovery.WithScrollDelay(cfg.ScrollDelay())

	if _, err := engine.Sweep(ctx, sess, col); err != nil {
		r.log.Warn("initial sweep failed", zap.Error(err))
	}
	r.reportDiscovery(ctx, col.Len(), cfg.MaxItems)

	if cfg.AutoScroll && !col.Full() {
		res, err := engine.Run(ctx, sess, col, func(found, limit int) {
			r.reportDiscovery(ctx, found, limit)
		})
		if err != nil {
			return nil, nil, err
		}
		r.log.Info("discovery finished",
			zap.Int("iterations", res.Iterations),
			zap.String("reason", res.StopReason),
		)
	}

	if !col.Full() {
		if _, err := engine.Sweep(ctx, sess, col); err != nil {
			r.log.Warn("final sweep failed", zap.Error(err))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("discovery canceled: %w", err)
	}

	refs := col.Refs()
	r.counters.ItemsDiscovered = len(refs)
	r.counters.ItemsTarget = len(refs)
	r.update(ctx, gallery.JobUpdate{Counters: &r.counters})
	r.emit(progress.Event{Stage: progress.StageDiscovery, Found: len(refs), Target: cfg.MaxItems, Note: "complete"})
	return refs, col.Thumbnail, nil
}

func (r *run) reportDiscovery(ctx context.Context, found, limit int) {
	if found == r.counters.ItemsDiscovered {
		return
	}
	r.counters.ItemsDiscovered = found
	r.update(ctx, gallery.JobUpdate{Counters: &r.counters})
	r.emit(progress.Event{Stage: progress.StageDiscovery, Found: found, Target: limit})
}

// extractAll processes refs one at a time with randomized pacing.
func (r *run) extractAll(ctx context.Context, sess Session, refs []gallery.ItemReference, thumbs func(string) string) error {
	var lookup extract.MetadataLookup
	if cache := sess.Metadata(); cache != nil {
		lookup = cache
	}
	ex := extract.New(r.o.cfg.Extract, r.o.san, sess, lookup, r.log)
	total := len(refs)

	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extraction canceled: %w", err)
		}
		begin := r.o.clock.Now()
		rec, err := r.extractOne(ctx, ex, ref, thumbs(ref.ItemID))
		done := i + 1
		pct := float64(done) / float64(total) * 100

		if err != nil {
			r.counters.ItemsFailed++
			r.log.Error("item failed", zap.String("item_id", ref.ItemID), zap.Error(err))
			r.update(ctx, gallery.JobUpdate{Progress: &pct, Counters: &r.counters})
			r.emit(progress.Event{
				Stage: progress.StageItemFailed, URL: ref.CanonicalURL, ItemID: ref.ItemID,
				Done: done, Total: total, Dur: r.o.clock.Now().Sub(begin), Note: err.Error(),
			})
		} else {
			r.records = append(r.records, rec)
			r.counters.ItemsScraped++
			r.update(ctx, gallery.JobUpdate{Progress: &pct, Counters: &r.counters, Records: r.records})
			r.emit(progress.Event{
				Stage: progress.StageItemDone, URL: ref.CanonicalURL, ItemID: ref.ItemID,
				Done: done, Total: total, Fields: rec.FieldCount(), Dur: r.o.clock.Now().Sub(begin),
			})
		}

		if done < total {
			if err := r.o.sleep(ctx, r.itemDelay()); err != nil {
				return fmt.Errorf("extraction canceled: %w", err)
			}
		}
	}
	return nil
}

// extractOne is the per-item panic boundary.
func (r *run) extractOne(ctx context.Context, ex *extract.Extractor, ref gallery.ItemReference, thumb string) (rec gallery.ExtractedRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("extract %s: panic: %v", ref.ItemID, p)
		}
	}()
	return ex.Extract(ctx, ref, r.job.Config.ExtractDetails, thumb), nil
}

func (r *run) itemDelay() time.Duration {
	lo, hi := r.o.cfg.MinItemDelay, r.o.cfg.MaxItemDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.o.jitter(int64(hi-lo)+1))
}

func (r *run) complete() (gallery.Job, error) {
	completed := gallery.JobStatusCompleted
	full := 100.0
	now := r.o.clock.Now()
	records := r.records
	if records == nil {
		records = []gallery.ExtractedRecord{}
	}
	job, err := r.o.store.Update(context.Background(), r.job.ID, gallery.JobUpdate{
		Status:      &completed,
		Progress:    &full,
		Counters:    &r.counters,
		Records:     records,
		CompletedAt: &now,
	})
	if err != nil {
		return r.job, fmt.Errorf("complete job %s: %w", r.job.ID, err)
	}
	metrics.ObserveJob(string(gallery.JobStatusCompleted))
	r.emit(progress.Event{Stage: progress.StageJobDone, URL: r.job.URL, Done: len(r.records), Total: r.counters.ItemsTarget, Dur: now.Sub(r.start)})
	r.log.Info("job completed",
		zap.Int("items_scraped", r.counters.ItemsScraped),
		zap.Int("items_failed", r.counters.ItemsFailed),
		zap.Duration("elapsed", now.Sub(r.start)),
	)
	return job, nil
}

func (r *run) fail(cause error) (gallery.Job, error) {
	status := gallery.JobStatusError
	msg := cause.Error()
	now := r.o.clock.Now()
	update := gallery.JobUpdate{
		Status:      &status,
		Counters:    &r.counters,
		Error:       &msg,
		CompletedAt: &now,
	}
	if r.records != nil {
		update.Records = r.records
	}
	job, err := r.o.store.Update(context.Background(), r.job.ID, update)
	if err != nil {
		return r.job, errors.Join(cause, fmt.Errorf("mark job %s failed: %w", r.job.ID, err))
	}
	metrics.ObserveJob(string(gallery.JobStatusError))
	r.emit(progress.Event{Stage: progress.StageJobError, URL: r.job.URL, Dur: now.Sub(r.start), Note: msg})
	r.log.Error("job failed", zap.Error(cause))
	return job, cause
}

// update writes intermediate state. Failures are logged; the final update
// decides the job outcome.
func (r *run) update(ctx context.Context, u gallery.JobUpdate) {
	if _, err := r.o.store.Update(context.WithoutCancel(ctx), r.job.ID, u); err != nil {
		r.log.Warn("job update failed", zap.Error(err))
	}
}

func (r *run) emit(evt progress.Event) {
	evt.JobID = r.job.ID
	evt.TS = r.o.clock.Now()
	evt.Site = r.site
	r.o.emitter.Emit(evt)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
