package extract

import (
	"strings"

	"github.com/tidwall/gjson"
)

type aliasSet struct {
	field Field
	paths []string
}

// payloadAliases maps record fields to the keys used by gallery APIs and
// hydration payloads, in priority order.
var payloadAliases = []aliasSet{
	{FieldCredit, []string{"credit", "creditName", "author", "photographer", "artist"}},
	{FieldDimensions, []string{"dimensions", "size", "maxDimensions"}},
	{FieldFileSize, []string{"fileSize", "file_size"}},
	{FieldCountry, []string{"country", "location.country"}},
	{FieldCity, []string{"city", "location.city"}},
	{FieldDate, []string{"date", "createdAt", "dateCreated", "dateTaken"}},
	{FieldCaption, []string{"title", "event", "eventTitle", "caption", "description"}},
	{FieldThumbnail, []string{"thumbnail", "thumbUrl", "thumbnailUrl", "previewUrl"}},
}

// applyPayload fills fields from one JSON object.
func (b *builder) applyPayload(obj gjson.Result, tier string) {
	if !obj.IsObject() {
		return
	}
	for _, a := range payloadAliases {
		if !b.empty(a.field) {
			continue
		}
		for _, path := range a.paths {
			if b.set(a.field, jsonText(obj.Get(path)), tier) {
				break
			}
		}
	}
}

// jsonText flattens a JSON value into a candidate string. Objects yield a
// name-like member or a width x height pair; arrays yield their first value.
func jsonText(v gjson.Result) string {
	switch {
	case !v.Exists():
		return ""
	case v.Type == gjson.String || v.Type == gjson.Number:
		return strings.TrimSpace(v.String())
	case v.IsObject():
		for _, key := range []string{"name", "displayName", "text", "value", "url"} {
			if s := v.Get(key); s.Type == gjson.String || s.Type == gjson.Number {
				return strings.TrimSpace(s.String())
			}
		}
		w, h := v.Get("width"), v.Get("height")
		if w.Type == gjson.Number && h.Type == gjson.Number {
			return w.String() + " x " + h.String()
		}
	case v.IsArray():
		for _, item := range v.Array() {
			if s := jsonText(item); s != "" {
				return s
			}
		}
	}
	return ""
}

// labelSynonyms normalizes detail-page labels onto record fields.
var labelSynonyms = map[string]Field{
	"credit":         FieldCredit,
	"credits":        FieldCredit,
	"photographer":   FieldCredit,
	"photo by":       FieldCredit,
	"author":         FieldCredit,
	"artist":         FieldCredit,
	"creator":        FieldCredit,
	"dimensions":     FieldDimensions,
	"size":           FieldDimensions,
	"max dimensions": FieldDimensions,
	"resolution":     FieldDimensions,
	"file size":      FieldFileSize,
	"filesize":       FieldFileSize,
	"country":        FieldCountry,
	"city":           FieldCity,
	"location":       FieldCity,
	"place":          FieldCity,
	"date":           FieldDate,
	"date taken":     FieldDate,
	"date created":   FieldDate,
	"created":        FieldDate,
	"taken":          FieldDate,
	"event":          FieldCaption,
	"title":          FieldCaption,
	"caption":        FieldCaption,
	"subject":        FieldCaption,
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.Join(strings.Fields(label), " "))
	return strings.TrimRight(label, " :.-")
}

func lookupLabel(label string) (Field, bool) {
	f, ok := labelSynonyms[normalizeLabel(label)]
	return f, ok
}
