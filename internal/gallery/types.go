// Package gallery defines the core types shared by the scraping subsystems.
package gallery

import (
	"net/url"
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusScraping  JobStatus = "scraping"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// Scroll delay bounds accepted by JobConfig.Validate.
const (
	MinScrollDelayMs = 500
	MaxScrollDelayMs = 5000
)

// JobConfig captures the per-job options requested by the client.
type JobConfig struct {
	URL            string `json:"url"`
	MaxItems       int    `json:"maxItems"`
	ExtractDetails bool   `json:"extractDetails"`
	AutoScroll     bool   `json:"autoScroll"`
	ScrollDelayMs  int    `json:"scrollDelayMs"`
}

// ScrollDelay returns the configured scroll delay as a duration.
func (c JobConfig) ScrollDelay() time.Duration {
	return time.Duration(c.ScrollDelayMs) * time.Millisecond
}

// Validate rejects configurations before any browser resource is allocated.
func (c JobConfig) Validate() error {
	if c.URL == "" {
		return invalidConfig("url is required")
	}
	parsed, err := url.Parse(c.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return invalidConfig("url must be an absolute http(s) url")
	}
	if c.MaxItems < 0 {
		return invalidConfig("maxItems must be >= 0")
	}
	if c.ScrollDelayMs < MinScrollDelayMs || c.ScrollDelayMs > MaxScrollDelayMs {
		return invalidConfig("scrollDelayMs must be between 500 and 5000")
	}
	return nil
}

// JobCounters tracks item statistics per job.
type JobCounters struct {
	ItemsDiscovered int `json:"itemsDiscovered"`
	ItemsTarget     int `json:"itemsTarget"`
	ItemsScraped    int `json:"itemsScraped"`
	ItemsFailed     int `json:"itemsFailed"`
}

// Job is the metadata kept for each submitted scrape request.
type Job struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Config      JobConfig         `json:"config"`
	Status      JobStatus         `json:"status"`
	Progress    float64           `json:"progress"`
	Counters    JobCounters       `json:"counters"`
	Records     []ExtractedRecord `json:"records"`
	Error       *string           `json:"error"`
	CreatedAt   time.Time         `json:"createdAt"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// JobUpdate carries the subset of job fields the orchestrator may change.
// Nil fields are left untouched.
type JobUpdate struct {
	Status      *JobStatus
	Progress    *float64
	Counters    *JobCounters
	Records     []ExtractedRecord
	Error       *string
	CompletedAt *time.Time
}

// ItemReference identifies one gallery item discovered on a listing page.
type ItemReference struct {
	ItemID        string `json:"itemId"`
	NamespaceHash string `json:"namespaceHash"`
	CanonicalURL  string `json:"canonicalUrl"`
}

// ExtractedRecord is the normalized metadata for one item. Only ItemID and URL
// are guaranteed; every other field may be nil.
type ExtractedRecord struct {
	ItemID       string  `json:"id"`
	URL          string  `json:"url"`
	Credit       *string `json:"credit"`
	Dimensions   *string `json:"dimensions"`
	FileSize     *string `json:"fileSize"`
	Country      *string `json:"country"`
	City         *string `json:"city"`
	Date         *string `json:"date"`
	Caption      *string `json:"event"`
	ThumbnailURL *string `json:"thumbnailUrl"`
}

// NewRecord returns an empty record for the reference.
func NewRecord(ref ItemReference) ExtractedRecord {
	return ExtractedRecord{ItemID: ref.ItemID, URL: ref.CanonicalURL}
}

// HintSource names the lookup strategy that produced an ItemHint.
type HintSource string

// Sources reported by the page when collecting item hints.
const (
	HintComponent HintSource = "component"
	HintAnchor    HintSource = "anchor"
	HintData      HintSource = "data"
)

// ItemHint is a raw observation of a possible item on the listing page.
type ItemHint struct {
	Source    HintSource `json:"source"`
	ItemID    string     `json:"itemId"`
	Namespace string     `json:"namespace"`
	Href      string     `json:"href"`
	Thumbnail string     `json:"thumbnail"`
}

// ControlCandidate describes a clickable element that may advance pagination.
type ControlCandidate struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	AriaLabel string `json:"ariaLabel"`
	Class     string `json:"className"`
	Disabled  bool   `json:"disabled"`
	InBand    bool   `json:"inBand"`
}

// DetailPage is the rendered snapshot of an item detail page.
type DetailPage struct {
	URL        string
	HTML       string
	MarkersSet bool
}

// Profile selects how a navigation waits for the page to settle.
type Profile int

// Navigation profiles.
const (
	ProfileListing Profile = iota
	ProfileDetail
)

func (p Profile) String() string {
	switch p {
	case ProfileListing:
		return "listing"
	case ProfileDetail:
		return "detail"
	default:
		return "unknown"
	}
}

// FieldCount reports how many optional metadata fields are set.
func (r ExtractedRecord) FieldCount() int {
	n := 0
	for _, f := range []*string{r.Credit, r.Dimensions, r.FileSize, r.Country, r.City, r.Date, r.Caption, r.ThumbnailURL} {
		if f != nil {
			n++
		}
	}
	return n
}
