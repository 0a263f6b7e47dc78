package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate is a simple string truncate. It counts runes so multi-byte text
// is never cut mid-character.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// SingleLine collapses all whitespace runs, newlines included, into single
// spaces. Used for one-line previews of multi-line content.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SplitCSV splits comma separated values, trimming spaces and dropping
// blanks. Each argument may itself hold a comma separated list.
func SplitCSV(values ...string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
