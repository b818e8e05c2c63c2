package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/progress"
)

type fakeTimeline struct {
	calls []string
	byJob map[string][]progress.Event
	err   error
}

func (f *fakeTimeline) AppendEvents(_ context.Context, jobID string, events []progress.Event) error {
	if f.err != nil {
		return f.err
	}
	if f.byJob == nil {
		f.byJob = map[string][]progress.Event{}
	}
	f.calls = append(f.calls, jobID)
	f.byJob[jobID] = append(f.byJob[jobID], events...)
	return nil
}

func TestTimelineSinkGroupsByJob(t *testing.T) {
	t.Parallel()

	store := &fakeTimeline{}
	sink := NewTimelineSink(store, zap.NewNop())
	now := time.Now()
	batch := []progress.Event{
		{JobID: "b", TS: now, Stage: progress.StageJobStart},
		{JobID: "a", TS: now, Stage: progress.StageJobStart},
		{JobID: "b", TS: now, Stage: progress.StageJobDone},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, []string{"b", "a"}, store.calls)
	require.Len(t, store.byJob["b"], 2)
	require.Equal(t, progress.StageJobDone, store.byJob["b"][1].Stage)
}

func TestTimelineSinkPropagatesErrors(t *testing.T) {
	t.Parallel()

	sink := NewTimelineSink(&fakeTimeline{err: errors.New("full")}, nil)
	err := sink.Consume(context.Background(), []progress.Event{{JobID: "a", TS: time.Now(), Stage: progress.StageJobStart}})
	require.ErrorContains(t, err, "full")
	require.NoError(t, NewTimelineSink(nil, nil).Consume(context.Background(), nil))
}
