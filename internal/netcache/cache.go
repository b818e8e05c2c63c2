// Package netcache holds metadata payloads intercepted from the gallery's own
// API responses. A Cache belongs to a single job's browser session.
package netcache

import (
	"sync"

	"github.com/tidwall/gjson"
)

const defaultMaxEntries = 5000

// IDFields lists the identifier keys recognised in an API payload, in order.
var IDFields = []string{"id", "assetId", "asset_id", "itemId", "item_id"}

// collectionFields name arrays that hold one payload per item.
var collectionFields = []string{"assets", "items", "results", "images", "data"}

// Cache maps item ids to the raw JSON payload last seen for them.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string][]byte
	maxEntries int
	dropped    int
}

// New creates a Cache bounded to maxEntries distinct ids (default 5000).
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string][]byte),
		maxEntries: maxEntries,
	}
}

// Put stores payload under id. Existing ids are overwritten; new ids beyond
// the bound are dropped and Put reports false.
func (c *Cache) Put(id string, payload []byte) bool {
	if id == "" || len(payload) == 0 {
		return false
	}
	cp := append([]byte(nil), payload...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.maxEntries {
		c.dropped++
		return false
	}
	c.entries[id] = cp
	return true
}

// Lookup returns the payload stored for id.
func (c *Cache) Lookup(id string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	payload, ok := c.entries[id]
	return payload, ok
}

// Len returns the number of cached ids.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dropped returns how many new ids were refused because the cache was full.
func (c *Cache) Dropped() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

// Ingest stores every item payload found in an API response body and returns
// how many were stored. Bodies that are not JSON are ignored.
func (c *Cache) Ingest(body []byte) int {
	if !gjson.ValidBytes(body) {
		return 0
	}
	root := gjson.ParseBytes(body)
	stored := 0
	for _, item := range payloadItems(root) {
		if id := PayloadID(item); id != "" && c.Put(id, []byte(item.Raw)) {
			stored++
		}
	}
	return stored
}

// PayloadID returns the first recognised identifier of a JSON object.
func PayloadID(obj gjson.Result) string {
	if !obj.IsObject() {
		return ""
	}
	for _, field := range IDFields {
		if v := obj.Get(field); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func payloadItems(root gjson.Result) []gjson.Result {
	if root.IsArray() {
		return root.Array()
	}
	if !root.IsObject() {
		return nil
	}
	if PayloadID(root) != "" {
		return []gjson.Result{root}
	}
	for _, field := range collectionFields {
		if v := root.Get(field); v.IsArray() {
			return v.Array()
		}
		if v := root.Get(field); v.IsObject() && PayloadID(v) != "" {
			return []gjson.Result{v}
		}
	}
	return nil
}
