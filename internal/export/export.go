// Package export renders a job's records as a JSON envelope, CSV or a
// terminal table.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
)

// Format selects an output encoding.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
	FormatTable Format = "table"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat maps a user-supplied name to a Format. Empty means JSON.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatTable:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// Columns is the CSV header.
var Columns = []string{
	"id", "credit", "dimensions", "fileSize", "city", "country",
	"date", "event", "url", "copyLink", "thumbnailUrl",
}

// Envelope is the JSON export document.
type Envelope struct {
	JobID       string                    `json:"jobId"`
	URL         string                    `json:"url"`
	TotalImages int                       `json:"totalImages"`
	ScrapedAt   time.Time                 `json:"scrapedAt"`
	CompletedAt *time.Time                `json:"completedAt"`
	Images      []gallery.ExtractedRecord `json:"images"`
}

// NewEnvelope builds the export document for job.
func NewEnvelope(job gallery.Job) Envelope {
	scrapedAt := job.CreatedAt
	if job.StartedAt != nil {
		scrapedAt = *job.StartedAt
	}
	images := job.Records
	if images == nil {
		images = []gallery.ExtractedRecord{}
	}
	return Envelope{
		JobID:       job.ID,
		URL:         job.URL,
		TotalImages: len(images),
		ScrapedAt:   scrapedAt,
		CompletedAt: job.CompletedAt,
		Images:      images,
	}
}

// Write renders job to w in format f.
func Write(w io.Writer, job gallery.Job, f Format) error {
	switch f {
	case FormatJSON, "":
		return WriteJSON(w, job)
	case FormatCSV:
		return WriteCSV(w, job)
	case FormatTable:
		return WriteTable(w, job)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// WriteJSON writes the indented envelope.
func WriteJSON(w io.Writer, job gallery.Job) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewEnvelope(job)); err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	return nil
}

// WriteCSV writes a header row and one row per record; null fields are empty.
func WriteCSV(w io.Writer, job gallery.Job) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range job.Records {
		if err := cw.Write(row(rec)); err != nil {
			return fmt.Errorf("write csv row %s: %w", rec.ItemID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

const captionWidth = 48

// WriteTable renders a compact summary table for terminals.
func WriteTable(w io.Writer, job gallery.Job) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Credit", "Date", "City", "Country", "Event"})
	for _, rec := range job.Records {
		t.AppendRow(table.Row{
			rec.ItemID,
			deref(rec.Credit),
			deref(rec.Date),
			deref(rec.City),
			deref(rec.Country),
			text.Trim(strings.ReplaceAll(deref(rec.Caption), "\n", " "), captionWidth),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(job.Records)})
	t.Render()
	return nil
}

func row(rec gallery.ExtractedRecord) []string {
	return []string{
		rec.ItemID,
		deref(rec.Credit),
		deref(rec.Dimensions),
		deref(rec.FileSize),
		deref(rec.City),
		deref(rec.Country),
		deref(rec.Date),
		deref(rec.Caption),
		rec.URL,
		rec.URL,
		deref(rec.ThumbnailURL),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
