package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gallery-scraper/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	const jobID = "job-1"
	batch := []progress.Event{
		{JobID: jobID, TS: now, Stage: progress.StageJobStart, Site: "gallery.example"},
		{JobID: jobID, TS: now, Stage: progress.StageDiscovery, Site: "gallery.example", Found: 3},
		{JobID: jobID, TS: now, Stage: progress.StageDiscovery, Site: "gallery.example", Found: 5},
		{JobID: jobID, TS: now, Stage: progress.StageDiscovery, Site: "gallery.example", Found: 5},
		{JobID: jobID, TS: now, Stage: progress.StageItemDone, Site: "gallery.example", ItemID: "a", Done: 1, Total: 2, Fields: 4, Dur: time.Second},
		{JobID: jobID, TS: now, Stage: progress.StageItemFailed, Site: "gallery.example", ItemID: "b", Done: 2, Total: 2},
		{JobID: jobID, TS: now, Stage: progress.StageJobDone, Dur: 15 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 5.0, testutil.ToFloat64(sink.discovered.WithLabelValues("gallery.example")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.itemsProcessed.WithLabelValues("success", "gallery.example")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.itemsProcessed.WithLabelValues("error", "gallery.example")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.jobRuntime, "scraper_job_runtime_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
