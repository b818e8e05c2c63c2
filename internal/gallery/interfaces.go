package gallery

import (
	"context"
	"time"
)

// JobStore is the job collaborator: it creates, reads and updates jobs by id.
type JobStore interface {
	Create(ctx context.Context, cfg JobConfig) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	Update(ctx context.Context, id string, update JobUpdate) (Job, error)
	List(ctx context.Context) ([]Job, error)
}

// Queue provides enqueue/dequeue semantics for scrape jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// RateLimiter gates job creation per client key.
type RateLimiter interface {
	IsAllowed(clientKey string) bool
	RemainingWait(clientKey string) time.Duration
}

// Hasher computes digests used for namespace hashes.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Submitted int64
}
