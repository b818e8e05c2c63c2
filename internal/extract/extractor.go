// Package extract turns an item reference into a normalized record by
// reconciling four sources: intercepted API payloads, the detail page's
// labeled metadata list, free-text caption lines and hydration JSON.
package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
	"github.com/JakeFAU/gallery-scraper/internal/sanitize"
)

// DetailLoader renders an item detail page.
type DetailLoader interface {
	LoadDetail(ctx context.Context, url string) (gallery.DetailPage, error)
}

// MetadataLookup returns the intercepted API payload for an item.
type MetadataLookup interface {
	Lookup(id string) ([]byte, bool)
}

// Config holds the CSS selectors used on detail pages.
type Config struct {
	EntrySelector     string
	LabelSelector     string
	ValueSelector     string
	TitleSelector     string
	CaptionSelector   string
	HydrationSelector string
	HydrationPaths    []string
}

// DefaultConfig returns selectors matching common gallery markup.
func DefaultConfig() Config {
	return Config{
		EntrySelector:     "li, tr, dl > div, [data-field]",
		LabelSelector:     "[data-label], .label, dt, th, strong",
		ValueSelector:     "a, button",
		TitleSelector:     "h1",
		CaptionSelector:   "figcaption, [data-caption], .caption",
		HydrationSelector: "script#__NEXT_DATA__",
		HydrationPaths: []string{
			"props.pageProps.asset",
			"props.pageProps.item",
			"props.pageProps.image",
			"asset",
			"item",
			"",
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.EntrySelector == "" {
		c.EntrySelector = def.EntrySelector
	}
	if c.LabelSelector == "" {
		c.LabelSelector = def.LabelSelector
	}
	if c.ValueSelector == "" {
		c.ValueSelector = def.ValueSelector
	}
	if c.TitleSelector == "" {
		c.TitleSelector = def.TitleSelector
	}
	if c.CaptionSelector == "" {
		c.CaptionSelector = def.CaptionSelector
	}
	if c.HydrationSelector == "" {
		c.HydrationSelector = def.HydrationSelector
	}
	if len(c.HydrationPaths) == 0 {
		c.HydrationPaths = def.HydrationPaths
	}
	return c
}

// Extractor builds records for one job. Loader and lookup may be nil.
type Extractor struct {
	cfg    Config
	san    *sanitize.Sanitizer
	loader DetailLoader
	lookup MetadataLookup
	logger *zap.Logger
}

// New creates an Extractor bound to a job's detail loader and metadata cache.
func New(cfg Config, san *sanitize.Sanitizer, loader DetailLoader, lookup MetadataLookup, logger *zap.Logger) *Extractor {
	if san == nil {
		san = sanitize.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		cfg:    cfg.withDefaults(),
		san:    san,
		loader: loader,
		lookup: lookup,
		logger: logger.Named("extract"),
	}
}

// Extract never fails: every problem leaves the affected fields nil and the
// record built so far is returned.
func (e *Extractor) Extract(ctx context.Context, ref gallery.ItemReference, detailEnabled bool, thumbnailHint string) gallery.ExtractedRecord {
	rec := gallery.NewRecord(ref)
	b := &builder{rec: &rec, san: e.san}
	log := e.logger.With(zap.String("item_id", ref.ItemID))

	if e.lookup != nil {
		if payload, ok := e.lookup.Lookup(ref.ItemID); ok && gjson.ValidBytes(payload) {
			b.applyPayload(gjson.ParseBytes(payload), tierNetwork)
		}
	}
	b.set(FieldThumbnail, thumbnailHint, tierHint)

	if !detailEnabled || e.loader == nil || b.complete() {
		return rec
	}

	page, err := e.loader.LoadDetail(ctx, ref.CanonicalURL)
	if err != nil {
		log.Warn("detail page unavailable", zap.String("url", ref.CanonicalURL), zap.Error(err))
		return rec
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		log.Debug("detail html unparseable", zap.Error(err))
		return rec
	}

	title, caption := e.structured(b, doc)
	b.applyCaption(caption)
	e.hydration(b, doc, log)
	b.set(FieldCaption, title, tierTitle)
	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		b.set(FieldThumbnail, og, tierOpenGraph)
	}
	return rec
}
