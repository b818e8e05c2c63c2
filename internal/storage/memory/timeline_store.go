package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/gallery-scraper/internal/progress"
)

// DefaultTimelineCapacity bounds the events kept per job.
const DefaultTimelineCapacity = 500

// TimelineStore keeps the most recent progress events of each job.
type TimelineStore struct {
	mu       sync.RWMutex
	capacity int
	events   map[string][]progress.Event
}

// NewTimelineStore constructs a TimelineStore holding up to capacity events
// per job; older events are discarded first.
func NewTimelineStore(capacity int) *TimelineStore {
	if capacity <= 0 {
		capacity = DefaultTimelineCapacity
	}
	return &TimelineStore{
		capacity: capacity,
		events:   make(map[string][]progress.Event),
	}
}

// AppendEvents adds events to the job's timeline.
func (s *TimelineStore) AppendEvents(_ context.Context, jobID string, events []progress.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	timeline := append(s.events[jobID], events...)
	if overflow := len(timeline) - s.capacity; overflow > 0 {
		timeline = append([]progress.Event(nil), timeline[overflow:]...)
	}
	s.events[jobID] = timeline
	return nil
}

// Events returns a page of the job's timeline, oldest first.
func (s *TimelineStore) Events(_ context.Context, jobID string, limit, offset int) ([]progress.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	timeline := s.events[jobID]
	if offset >= len(timeline) {
		return []progress.Event{}, nil
	}
	end := len(timeline)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]progress.Event, end-offset)
	copy(out, timeline[offset:end])
	return out, nil
}
