package model

import "strings"

// Slugify lowercases a name and reduces it to hyphen-separated
// alphanumeric runs.
func Slugify(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, " "))
	var b strings.Builder
	lastHyphen := true
	for _, r := range joined {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
