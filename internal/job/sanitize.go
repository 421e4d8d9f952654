package job

import (
	"strings"
	"unicode"
)

const (
	defaultTitle   = "audio"
	maxFilenameLen = 200
)

// SanitizeFilename keeps letters, digits, underscores, whitespace and
// hyphens, joins runs of whitespace and hyphens with a single underscore and
// trims the result. "My Song! (Live)" becomes "My_Song_Live".
func SanitizeFilename(title string) string {
	var b strings.Builder
	pendingSep := false

	for _, r := range title {
		switch {
		case unicode.IsSpace(r) || r == '-':
			pendingSep = true
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		}
	}

	name := strings.Trim(b.String(), "_")
	if len(name) > maxFilenameLen {
		name = truncateRunes(name, maxFilenameLen)
	}
	if name == "" {
		return defaultTitle
	}
	return name
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return strings.TrimRight(s[:cut], "_")
}
