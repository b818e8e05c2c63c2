package extract

import (
	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/metrics"
	"github.com/JakeFAU/gallery-scraper/internal/sanitize"
)

// Field names a nullable record field.
type Field int

// Record fields filled by the tiers.
const (
	FieldCredit Field = iota
	FieldDimensions
	FieldFileSize
	FieldCountry
	FieldCity
	FieldDate
	FieldCaption
	FieldThumbnail
)

// Tier names reported to metrics.
const (
	tierNetwork   = "network"
	tierHint      = "hint"
	tierStructure = "structured"
	tierCaption   = "caption"
	tierHydration = "hydration"
	tierTitle     = "title"
	tierOpenGraph = "og_image"
)

// builder applies the first-non-null-wins rule: a field, once set, is never
// overwritten, and every value is sanitized before it is considered.
type builder struct {
	rec *gallery.ExtractedRecord
	san *sanitize.Sanitizer
}

func (b *builder) slot(f Field) **string {
	switch f {
	case FieldCredit:
		return &b.rec.Credit
	case FieldDimensions:
		return &b.rec.Dimensions
	case FieldFileSize:
		return &b.rec.FileSize
	case FieldCountry:
		return &b.rec.Country
	case FieldCity:
		return &b.rec.City
	case FieldDate:
		return &b.rec.Date
	case FieldCaption:
		return &b.rec.Caption
	case FieldThumbnail:
		return &b.rec.ThumbnailURL
	default:
		return nil
	}
}

// set fills f from raw if f is still empty and raw survives sanitization.
func (b *builder) set(f Field, raw, tier string) bool {
	slot := b.slot(f)
	if slot == nil || *slot != nil {
		return false
	}
	v := b.san.Value(raw)
	if v == nil {
		return false
	}
	*slot = v
	metrics.ObserveExtractionField(tier)
	return true
}

func (b *builder) empty(f Field) bool {
	slot := b.slot(f)
	return slot != nil && *slot == nil
}

// complete reports whether every field has a value.
func (b *builder) complete() bool {
	for f := FieldCredit; f <= FieldThumbnail; f++ {
		if b.empty(f) {
			return false
		}
	}
	return true
}
