package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// hydration reads the framework's embedded page state. Invalid JSON is
// skipped without touching the record.
func (e *Extractor) hydration(b *builder, doc *goquery.Document, log *zap.Logger) {
	raw := strings.TrimSpace(doc.Find(e.cfg.HydrationSelector).First().Text())
	if raw == "" {
		return
	}
	if !gjson.Valid(raw) {
		log.Debug("hydration payload is not valid json")
		return
	}
	root := gjson.Parse(raw)
	for _, path := range e.cfg.HydrationPaths {
		obj := root
		if path != "" {
			obj = root.Get(path)
		}
		b.applyPayload(obj, tierHydration)
		if b.complete() {
			return
		}
	}
}
