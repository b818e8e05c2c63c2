package extract

import (
	"regexp"
	"strings"
)

var (
	captionSplit = regexp.MustCompile(`\r?\n| / | \| `)

	captionCredit   = regexp.MustCompile(`(?i)^(?:photo(?:graph)? by|photographer|image by|credits?|courtesy of)\b\s*[:\-]?\s*(.+)$`)
	captionLocation = regexp.MustCompile(`(?i)^(?:where|location|place)\b\s*[:\-]?\s*(.+)$`)
	captionDate     = regexp.MustCompile(`(?i)^(?:when|date taken|date|taken)\b\s*[:\-]?\s*(.+)$`)
	captionSubject  = regexp.MustCompile(`(?i)^(?:subject|featuring|event)\b\s*[:\-]?\s*(.+)$`)
)

// applyCaption fills still-empty fields from labeled caption sub-lines.
func (b *builder) applyCaption(caption string) {
	if strings.TrimSpace(caption) == "" {
		return
	}
	for _, line := range captionSplit.Split(caption, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := captionCredit.FindStringSubmatch(line); m != nil {
			b.set(FieldCredit, m[1], tierCaption)
			continue
		}
		if m := captionLocation.FindStringSubmatch(line); m != nil {
			b.setPlace(m[1], tierCaption)
			continue
		}
		if m := captionDate.FindStringSubmatch(line); m != nil {
			b.set(FieldDate, m[1], tierCaption)
			continue
		}
		if m := captionSubject.FindStringSubmatch(line); m != nil {
			b.set(FieldCaption, m[1], tierCaption)
		}
	}
}
