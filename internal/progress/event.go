package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart   Stage = "JOB_START"
	StageDiscovery  Stage = "DISCOVERY"
	StageItemDone   Stage = "ITEM_DONE"
	StageItemFailed Stage = "ITEM_FAILED"
	StageJobDone    Stage = "JOB_DONE"
	StageJobError   Stage = "JOB_ERROR"
)

// Event captures a single step of a scrape job.
type Event struct {
	// JobID identifies the job that emitted the event.
	JobID string `json:"jobId"`
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time `json:"ts"`
	Stage Stage     `json:"stage"`
	// Site is the listing host label.
	Site string `json:"site,omitempty"`
	// URL is the listing or item URL the event refers to.
	URL    string `json:"url,omitempty"`
	ItemID string `json:"itemId,omitempty"`
	// Found and Target report discovery progress; Target 0 means unlimited.
	Found  int `json:"found,omitempty"`
	Target int `json:"target,omitempty"`
	// Done and Total report extraction progress.
	Done  int `json:"done,omitempty"`
	Total int `json:"total,omitempty"`
	// Fields counts the non-null metadata fields of an extracted record.
	Fields int `json:"fields,omitempty"`
	// Dur is the item or job latency.
	Dur time.Duration `json:"dur,omitempty"`
	// Note carries low-volume context such as an error message.
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError, StageDiscovery:
	case StageItemDone, StageItemFailed:
		if e.ItemID == "" {
			return fmt.Errorf("%s requires item id", e.Stage)
		}
		if e.Total <= 0 || e.Done > e.Total {
			return fmt.Errorf("%s requires done <= total", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Percent returns extraction progress in [0, 100].
func (e Event) Percent() float64 {
	if e.Total <= 0 {
		return 0
	}
	return float64(e.Done) / float64(e.Total) * 100
}
