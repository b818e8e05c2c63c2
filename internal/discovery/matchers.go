package discovery

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/JakeFAU/gallery-scraper/internal/gallery"
)

// DefaultLoadMorePattern matches generic "load more" style pagination markers.
const DefaultLoadMorePattern = `(?i)\b(load|show|see|view)[\s_-]*more\b|pagination|next[\s_-]*page|more[\s_-]*results`

// Matcher recognises one kind of pagination control. Matchers are tried in
// order and the first one with an eligible candidate wins.
type Matcher struct {
	Name  string
	Match func(gallery.ControlCandidate) bool
}

// DefaultMatchers returns the exact "next" matcher followed by loadMore.
func DefaultMatchers(loadMore *regexp.Regexp) []Matcher {
	return []Matcher{
		{Name: "next", Match: matchNext},
		{Name: "load_more", Match: func(c gallery.ControlCandidate) bool {
			return loadMore.MatchString(c.Text) || loadMore.MatchString(c.AriaLabel) || loadMore.MatchString(c.Class)
		}},
	}
}

func matchNext(c gallery.ControlCandidate) bool {
	return strings.EqualFold(trimLabel(c.Text), "next") || strings.EqualFold(trimLabel(c.AriaLabel), "next")
}

// trimLabel drops arrows and punctuation around a control label.
func trimLabel(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// findControl returns the first enabled, in-band candidate accepted by the
// highest priority matcher.
func findControl(matchers []Matcher, candidates []gallery.ControlCandidate) (gallery.ControlCandidate, string, bool) {
	for _, m := range matchers {
		for _, c := range candidates {
			if c.Disabled || !c.InBand {
				continue
			}
			if m.Match(c) {
				return c, m.Name, true
			}
		}
	}
	return gallery.ControlCandidate{}, "", false
}
