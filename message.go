package notifykit

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "…"

// composeText renders title, optional body and ordered tags into a single
// string capped at maxChars characters (runes, not bytes).
//
// Composition order is title, then "\n\n" and the body when present, then
// "\n" and "key=value" for each tag. When the rendered text does not fit,
// it is cut at a character boundary with room left for the ellipsis marker,
// trailing separators are stripped, and the marker is appended only when the
// cut landed inside a field. The output never ends with a separator.
func composeText(title, body string, tags []Tag, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(title)
	if body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	for _, t := range tags {
		b.WriteByte('\n')
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	s := b.String()

	if runeCount(s) <= maxChars {
		return s
	}

	cut := maxChars - 2
	if cut < 0 {
		cut = 0
	}
	prefix := firstRunes(s, cut)
	trimmed := strings.TrimRight(prefix, "\n")

	// A cut that lands exactly on a separator means the output ends with a
	// complete field; the marker is only for fields cut mid-way.
	if len(trimmed) < len(s) && s[len(trimmed)] == '\n' {
		return trimmed
	}
	return trimmed + ellipsis
}

// runeCount is utf8.RuneCountInString with a fast path for pure-ASCII input.
func runeCount(s string) int {
	if isASCII(s) {
		return len(s)
	}
	return utf8.RuneCountInString(s)
}

// firstRunes returns the prefix of s holding at most n characters.
func firstRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if isASCII(s) {
		if n >= len(s) {
			return s
		}
		return s[:n]
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i]
		}
		seen++
	}
	return s
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
