package util

import (
	"strings"
	"time"
)

// FormatDateTpl formats a millisecond Unix timestamp using a template with
// YYYY/YY/MM/DD/hh/mm/ss placeholders, e.g. "YYYY-MM-DD hh:mm".
// Returns "" when ts is zero.
func FormatDateTpl(ts int64, tpl string) string {
	if ts == 0 {
		return ""
	}

	// Longest placeholder first, so YY does not clobber YYYY.
	replacements := []struct{ from, to string }{
		{"YYYY", "2006"},
		{"YY", "06"},
		{"MM", "01"},
		{"DD", "02"},
		{"hh", "15"},
		{"mm", "04"},
		{"ss", "05"},
	}
	goTpl := tpl
	for _, r := range replacements {
		goTpl = strings.ReplaceAll(goTpl, r.from, r.to)
	}

	return time.UnixMilli(ts).Format(goTpl)
}
