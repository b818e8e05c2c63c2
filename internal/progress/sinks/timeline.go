package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/progress"
)

// TimelineStore keeps the recent progress events of each job.
type TimelineStore interface {
	AppendEvents(ctx context.Context, jobID string, events []progress.Event) error
}

// TimelineSink groups each batch by job and appends it to a TimelineStore so
// the API can serve a job's event history.
type TimelineSink struct {
	store  TimelineStore
	logger *zap.Logger
}

// NewTimelineSink constructs a TimelineSink for store.
func NewTimelineSink(store TimelineStore, logger *zap.Logger) *TimelineSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimelineSink{store: store, logger: logger}
}

// Consume appends events per job, preserving batch order.
func (s *TimelineSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	var order []string
	byJob := make(map[string][]progress.Event)
	for _, evt := range batch {
		if _, ok := byJob[evt.JobID]; !ok {
			order = append(order, evt.JobID)
		}
		byJob[evt.JobID] = append(byJob[evt.JobID], evt)
	}
	for _, jobID := range order {
		if err := s.store.AppendEvents(ctx, jobID, byJob[jobID]); err != nil {
			return fmt.Errorf("append events for job %s: %w", jobID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *TimelineSink) Close(context.Context) error {
	return nil
}
