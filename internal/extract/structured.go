package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "dd": true, "dt": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "section": true, "figcaption": true,
}

// structured reads labeled list entries into b and returns the page title and
// caption block for the later tiers.
func (e *Extractor) structured(b *builder, doc *goquery.Document) (string, string) {
	doc.Find(e.cfg.EntrySelector).Each(func(_ int, entry *goquery.Selection) {
		label := entry.Find(e.cfg.LabelSelector).First()
		if label.Length() == 0 {
			return
		}
		b.setLabeled(label.Text(), entryValue(entry, label, e.cfg.ValueSelector))
	})
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		value := dd.Find(e.cfg.ValueSelector).First()
		if value.Length() == 0 {
			value = dd
		}
		b.setLabeled(dt.Text(), value.Text())
	})

	title := strings.TrimSpace(doc.Find(e.cfg.TitleSelector).First().Text())
	caption := blockText(doc.Find(e.cfg.CaptionSelector).First())
	return title, caption
}

// entryValue prefers a clickable child, then the entry text after the label.
func entryValue(entry, label *goquery.Selection, valueSelector string) string {
	if v := entry.Find(valueSelector).NotSelection(label).First(); v.Length() > 0 {
		if text := strings.TrimSpace(v.Text()); text != "" {
			return text
		}
	}
	full := strings.TrimSpace(entry.Text())
	labelText := strings.TrimSpace(label.Text())
	if idx := strings.Index(full, labelText); idx >= 0 {
		return strings.TrimSpace(full[idx+len(labelText):])
	}
	return full
}

// setLabeled maps a label onto its field. Location-like labels holding a
// comma fill both city and country.
func (b *builder) setLabeled(label, value string) {
	f, ok := lookupLabel(label)
	if !ok {
		return
	}
	value = strings.TrimSpace(strings.TrimLeft(value, ":"))
	if f == FieldCity {
		b.setPlace(value, tierStructure)
		return
	}
	b.set(f, value, tierStructure)
}

func (b *builder) setPlace(value, tier string) {
	city, country, found := strings.Cut(value, ",")
	if !found {
		b.set(FieldCity, value, tier)
		return
	}
	b.set(FieldCity, strings.TrimSpace(city), tier)
	b.set(FieldCountry, strings.TrimSpace(country), tier)
}

// blockText renders a selection's text with line breaks for <br> and block
// elements, which the caption tier splits on.
func blockText(sel *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch name := goquery.NodeName(c); name {
			case "#text":
				sb.WriteString(c.Text())
			case "br":
				sb.WriteString("\n")
			case "script", "style", "#comment":
			default:
				walk(c)
				if blockElements[name] {
					sb.WriteString("\n")
				}
			}
		})
	}
	walk(sel)
	return strings.TrimSpace(sb.String())
}
