// Package sanitize validates and cleans raw text scraped from gallery pages.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	defaultMaxLength = 200
	defaultMaxLines  = 3
)

var (
	injectionPattern = regexp.MustCompile(`(?i)(script|iframe|onclick|onerror|onload)`)
	tagPattern       = regexp.MustCompile(`<[^<>]*>`)
	spacePattern     = regexp.MustCompile(`[ \t\f\v\r]+`)
	angleReplacer    = strings.NewReplacer("<", "", ">", "")
)

// DefaultBlocklist holds UI labels that are never item metadata.
var DefaultBlocklist = []string{
	"add to board",
	"copy link",
	"copy embed",
	"embed",
	"share",
	"save",
	"download",
	"more like this",
	"see more",
	"view more",
	"show more",
	"load more",
	"read more",
	"sign in",
	"close",
}

// Sanitizer rejects injection-looking and UI-chrome strings and trims the rest.
type Sanitizer struct {
	maxLength int
	maxLines  int
	blocked   map[string]struct{}
}

// New builds a Sanitizer. Non-positive limits fall back to the defaults and a
// nil blocklist uses DefaultBlocklist.
func New(maxLength, maxLines int, blocklist []string) *Sanitizer {
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	if blocklist == nil {
		blocklist = DefaultBlocklist
	}
	blocked := make(map[string]struct{}, len(blocklist))
	for _, phrase := range blocklist {
		blocked[normalize(phrase)] = struct{}{}
	}
	return &Sanitizer{maxLength: maxLength, maxLines: maxLines, blocked: blocked}
}

// Default returns a Sanitizer with the default limits and blocklist.
func Default() *Sanitizer {
	return New(0, 0, nil)
}

// Clean returns the cleaned value and true, or "" and false when raw fails any check.
func (s *Sanitizer) Clean(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	if injectionPattern.MatchString(raw) {
		return "", false
	}
	if s.isBlocked(raw) {
		return "", false
	}
	cleaned := tagPattern.ReplaceAllString(raw, "")
	cleaned = angleReplacer.Replace(cleaned)
	cleaned = tidyLines(cleaned)
	if cleaned == "" {
		return "", false
	}
	if s.isBlocked(cleaned) {
		return "", false
	}
	if utf8.RuneCountInString(cleaned) > s.maxLength {
		return "", false
	}
	if strings.Count(cleaned, "\n")+1 > s.maxLines {
		return "", false
	}
	return cleaned, true
}

// Value is Clean returning a nil pointer on rejection.
func (s *Sanitizer) Value(raw string) *string {
	cleaned, ok := s.Clean(raw)
	if !ok {
		return nil
	}
	return &cleaned
}

func (s *Sanitizer) isBlocked(value string) bool {
	_, ok := s.blocked[normalize(value)]
	return ok
}

func normalize(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// tidyLines collapses horizontal whitespace, trims each line and drops blank ones.
func tidyLines(value string) string {
	lines := strings.Split(strings.ReplaceAll(value, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
