// Package enrich holds the domain services that combine search, places and
// synthesis into validated directory content.
package enrich

import (
	"strings"
	"unicode/utf8"
)

var promptSanitizer = strings.NewReplacer(
	`"`, "",
	"'", "",
	"`", "",
	"<", "",
	">", "",
	"\n", " ",
	"\r", " ",
)

// Sanitize strips quote and angle-bracket characters and newlines from a
// free-text value and caps its length. Scraped or user-sourced strings go
// through this before being interpolated into a prompt.
func Sanitize(s string, max int) string {
	s = promptSanitizer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	if max > 0 && len(s) > max {
		// Back off to a rune boundary so multi-byte names stay valid UTF-8.
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return strings.TrimSpace(s)
}
