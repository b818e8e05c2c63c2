package discovery

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
)

// Collector is the ordered, ItemID-deduplicated set of references gathered
// during one job. It stops accepting references once Limit is reached.
type Collector struct {
	// Base resolves relative hrefs and the detail template.
	Base  string
	Limit int

	refs   []gallery.ItemReference
	index  map[string]struct{}
	thumbs map[string]string
}

// NewCollector creates a collector for listing base. limit 0 means unlimited.
func NewCollector(base string, limit int) *Collector {
	if limit < 0 {
		limit = 0
	}
	return &Collector{
		Base:   base,
		Limit:  limit,
		index:  make(map[string]struct{}),
		thumbs: make(map[string]string),
	}
}

// Add appends ref unless its ItemID was already seen or the collector is full.
func (c *Collector) Add(ref gallery.ItemReference, thumbnail string) bool {
	if ref.ItemID == "" || c.Full() {
		return false
	}
	if _, dup := c.index[ref.ItemID]; dup {
		if _, ok := c.thumbs[ref.ItemID]; !ok && thumbnail != "" {
			c.thumbs[ref.ItemID] = thumbnail
		}
		return false
	}
	c.index[ref.ItemID] = struct{}{}
	c.refs = append(c.refs, ref)
	if thumbnail != "" {
		c.thumbs[ref.ItemID] = thumbnail
	}
	return true
}

func (c *Collector) merge(seen []sighting) int {
	added := 0
	for _, s := range seen {
		if c.Add(s.ref, s.thumbnail) {
			added++
		}
	}
	return added
}

// Len returns the number of collected references.
func (c *Collector) Len() int { return len(c.refs) }

// Full reports whether the limit has been reached.
func (c *Collector) Full() bool { return c.Limit > 0 && len(c.refs) >= c.Limit }

// Refs returns the references in discovery order.
func (c *Collector) Refs() []gallery.ItemReference {
	return append([]gallery.ItemReference(nil), c.refs...)
}

// Thumbnail returns the listing thumbnail observed for id, if any.
func (c *Collector) Thumbnail(id string) string { return c.thumbs[id] }

// refFromHint turns a raw page observation into a reference.
func (e *Engine) refFromHint(base *url.URL, h gallery.ItemHint) (gallery.ItemReference, bool) {
	var id string
	switch h.Source {
	case gallery.HintComponent, gallery.HintData:
		id = strings.TrimSpace(h.ItemID)
		if id == "" {
			id = e.idFromHref(base, h.Href)
		}
	case gallery.HintAnchor:
		id = e.idFromHref(base, h.Href)
	default:
		return gallery.ItemReference{}, false
	}
	if id == "" {
		return gallery.ItemReference{}, false
	}
	canonical := e.canonicalURL(base, h.Href, id)
	namespace := strings.TrimSpace(h.Namespace)
	if namespace == "" {
		namespace = e.namespaceHash(canonical)
	}
	return gallery.ItemReference{ItemID: id, NamespaceHash: namespace, CanonicalURL: canonical}, true
}

// idFromHref extracts the item id from an href matching the item URL pattern.
func (e *Engine) idFromHref(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	u := resolve(base, href)
	if u == nil {
		return ""
	}
	m := e.itemPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	idx := e.itemPattern.SubexpIndex("id")
	if idx < 0 {
		idx = 1
	}
	if idx >= len(m) {
		return ""
	}
	return m[idx]
}

// canonicalURL prefers the observed href when it points at the item itself
// and falls back to the detail template.
func (e *Engine) canonicalURL(base *url.URL, href, id string) string {
	if href != "" && e.idFromHref(base, href) == id {
		if u := resolve(base, href); u != nil {
			u.Fragment = ""
			return u.String()
		}
	}
	path := strings.ReplaceAll(e.cfg.DetailTemplate, "{id}", url.PathEscape(id))
	if u := resolve(base, path); u != nil {
		return u.String()
	}
	return path
}

func (e *Engine) namespaceHash(canonical string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	segment := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
	digest, err := e.hasher.Hash([]byte(strings.ToLower(u.Host) + "/" + segment))
	if err != nil {
		return ""
	}
	return digest
}

func resolve(base *url.URL, ref string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil
	}
	if base == nil {
		if !u.IsAbs() {
			return nil
		}
		return u
	}
	return base.ResolveReference(u)
}
