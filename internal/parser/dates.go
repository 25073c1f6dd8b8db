package parser

import (
	"strings"
	"time"
)

// CanonicalDateLayout is the output form of every parsed date ("January 02, 2006").
const CanonicalDateLayout = "January 02, 2006"

// dateLayouts are tried in order; day-first numeric forms win over month-first.
var dateLayouts = []string{
	"January 2 2006",
	"2/1/2006",
	"2006/1/2",
	"2006-1-2",
	"2-1-2006",
}

// NormalizeDate rewrites a captured date into CanonicalDateLayout. Dates that
// match none of the known layouts are returned unmodified.
func NormalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	cleaned := strings.Join(strings.Fields(strings.ReplaceAll(raw, ",", "")), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format(CanonicalDateLayout), true
		}
	}
	return raw, true
}
