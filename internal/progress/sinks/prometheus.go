package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/gallery-scraper/internal/progress"
)

// PrometheusSink exports job and item progress via Prometheus collectors.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	itemsProcessed *prometheus.CounterVec
	itemDuration   prometheus.Histogram
	itemFields     prometheus.Histogram
	discovered     *prometheus.CounterVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_jobs_started_total",
			Help: "Total jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_jobs_completed_total",
			Help: "Total jobs finished partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_jobs_running",
			Help: "Current number of running jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"result"}),
		itemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_items_processed_total",
			Help: "Items processed partitioned by result and site.",
		}, []string{"result", "site"}),
		itemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_item_duration_seconds",
			Help:    "Extraction time per item.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		itemFields: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_item_fields",
			Help:    "Non-null metadata fields per extracted record.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
		}),
		discovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_items_discovered_total",
			Help: "Item references discovered on listing pages, by site.",
		}, []string{"site"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.itemsProcessed,
		s.itemDuration,
		s.itemFields,
		s.discovered,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			s.jobsStarted.Inc()
			if s.tracker.start(evt.JobID) {
				s.jobsRunning.Inc()
			}
		case progress.StageJobDone:
			s.finish(evt, "success")
		case progress.StageJobError:
			s.finish(evt, "error")
		case progress.StageDiscovery:
			if delta := s.tracker.discovered(evt.JobID, evt.Found); delta > 0 {
				s.discovered.WithLabelValues(siteLabel(evt.Site)).Add(float64(delta))
			}
		case progress.StageItemDone:
			s.itemsProcessed.WithLabelValues("success", siteLabel(evt.Site)).Inc()
			s.itemFields.Observe(float64(evt.Fields))
			if evt.Dur > 0 {
				s.itemDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageItemFailed:
			s.itemsProcessed.WithLabelValues("error", siteLabel(evt.Site)).Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.jobsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func siteLabel(site string) string {
	if site == "" {
		return "unknown"
	}
	return site
}

// jobTracker remembers running jobs and their last discovery count so
// repeated discovery events only add the delta.
type jobTracker struct {
	mu      sync.Mutex
	running map[string]int
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]int)}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = 0
	return true
}

func (t *jobTracker) discovered(id string, found int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.running[id]
	if !ok || found <= prev {
		return 0
	}
	t.running[id] = found
	return found - prev
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
