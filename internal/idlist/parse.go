// Package idlist turns the text of a request file into the ordered list of
// activity ids it contains.
package idlist

import (
	"regexp"
	"strings"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	nonDigit   = regexp.MustCompile(`\D`)
)

// Parse detects the delimiter used by text and splits it into ids. The first
// matching rule wins: comma, tab, newline, space, then any non-digit run.
// Ids are not validated here; the API rejects malformed ones.
func Parse(text string) []string {
	var parts []string
	switch {
	case strings.Contains(text, ","):
		// Whitespace, including newlines, is stripped before splitting.
		parts = strings.Split(whitespace.ReplaceAllString(text, ""), ",")
	case strings.Contains(text, "\t"):
		parts = strings.Split(text, "\t")
	case strings.Contains(text, "\n"):
		parts = strings.Split(text, "\n")
	case strings.Contains(text, " "):
		parts = strings.Split(text, " ")
	default:
		parts = nonDigit.Split(whitespace.ReplaceAllString(text, ""), -1)
	}

	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ids = append(ids, p)
	}
	return ids
}
