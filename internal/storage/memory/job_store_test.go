package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("job-%d", s.n), nil
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newStore() *JobStore {
	return NewJobStore(&seqIDs{}, &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
}

func validConfig() gallery.JobConfig {
	return gallery.JobConfig{URL: "https://gallery.example/search", MaxItems: 5, ScrollDelayMs: 1000}
}

func status(s gallery.JobStatus) *gallery.JobStatus { return &s }

func progressPtr(p float64) *float64 { return &p }

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := newStore()
	ctx := context.Background()

	job, err := store.Create(ctx, validConfig())
	require.NoError(t, err)
	require.Equal(t, gallery.JobStatusPending, job.Status)
	require.Equal(t, "job-1", job.ID)
	require.NotNil(t, job.Records)

	job, err = store.Update(ctx, job.ID, gallery.JobUpdate{Status: status(gallery.JobStatusScraping)})
	require.NoError(t, err)
	require.NotNil(t, job.StartedAt)
	started := *job.StartedAt

	records := []gallery.ExtractedRecord{{ItemID: "a", URL: "https://gallery.example/detail/a"}}
	counters := gallery.JobCounters{ItemsDiscovered: 3, ItemsTarget: 1, ItemsScraped: 1}
	job, err = store.Update(ctx, job.ID, gallery.JobUpdate{
		Progress: progressPtr(50),
		Counters: &counters,
		Records:  records,
	})
	require.NoError(t, err)
	require.Equal(t, 50.0, job.Progress)
	require.Equal(t, counters, job.Counters)
	records[0].ItemID = "mutated"
	stored, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, "a", stored.Records[0].ItemID)

	done := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	job, err = store.Update(ctx, job.ID, gallery.JobUpdate{
		Status:      status(gallery.JobStatusCompleted),
		Progress:    progressPtr(100),
		CompletedAt: &done,
	})
	require.NoError(t, err)
	require.Equal(t, gallery.JobStatusCompleted, job.Status)
	require.Equal(t, done, *job.CompletedAt)
	require.Equal(t, started, *job.StartedAt)
}

func TestJobStoreProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	store := newStore()
	ctx := context.Background()
	job, err := store.Create(ctx, validConfig())
	require.NoError(t, err)
	_, err = store.Update(ctx, job.ID, gallery.JobUpdate{Status: status(gallery.JobStatusScraping)})
	require.NoError(t, err)

	_, err = store.Update(ctx, job.ID, gallery.JobUpdate{Progress: progressPtr(60)})
	require.NoError(t, err)
	job, err = store.Update(ctx, job.ID, gallery.JobUpdate{Progress: progressPtr(40)})
	require.NoError(t, err)
	require.Equal(t, 60.0, job.Progress)

	job, err = store.Update(ctx, job.ID, gallery.JobUpdate{Progress: progressPtr(250)})
	require.NoError(t, err)
	require.Equal(t, 100.0, job.Progress)
}

func TestJobStoreRejectsInvalidTransitions(t *testing.T) {
	t.Parallel()

	store := newStore()
	ctx := context.Background()
	job, err := store.Create(ctx, validConfig())
	require.NoError(t, err)

	_, err = store.Update(ctx, job.ID, gallery.JobUpdate{Status: status(gallery.JobStatusCompleted)})
	require.ErrorIs(t, err, gallery.ErrInvalidTransition)

	_, err = store.Update(ctx, job.ID, gallery.JobUpdate{Status: status(gallery.JobStatusScraping)})
	require.NoError(t, err)
	msg := "navigation failed"
	_, err = store.Update(ctx, job.ID, gallery.JobUpdate{Status: status(gallery.JobStatusError), Error: &msg})
	require.NoError(t, err)

	_, err = store.Update(ctx, job.ID, gallery.JobUpdate{Status: status(gallery.JobStatusCompleted)})
	require.ErrorIs(t, err, gallery.ErrJobTerminal)
	_, err = store.Update(ctx, job.ID, gallery.JobUpdate{Progress: progressPtr(100)})
	require.ErrorIs(t, err, gallery.ErrJobTerminal)

	final, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, gallery.JobStatusError, final.Status)
	require.Equal(t, "navigation failed", *final.Error)
	require.NotNil(t, final.CompletedAt)
}

func TestJobStoreCreateValidates(t *testing.T) {
	t.Parallel()

	store := newStore()
	_, err := store.Create(context.Background(), gallery.JobConfig{URL: "https://gallery.example", ScrollDelayMs: 10})
	require.ErrorIs(t, err, gallery.ErrInvalidConfiguration)

	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestJobStoreGetMissing(t *testing.T) {
	t.Parallel()

	store := newStore()
	_, err := store.Get(context.Background(), "nope")
	require.True(t, errors.Is(err, gallery.ErrJobNotFound))
	_, err = store.Update(context.Background(), "nope", gallery.JobUpdate{})
	require.ErrorIs(t, err, gallery.ErrJobNotFound)
}

func TestJobStoreListOrdersByCreation(t *testing.T) {
	t.Parallel()

	store := newStore()
	ctx := context.Background()
	for range 3 {
		_, err := store.Create(ctx, validConfig())
		require.NoError(t, err)
	}
	jobs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	require.Equal(t, []string{"job-1", "job-2", "job-3"}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
}
