package util

import (
	"regexp"
	"strings"
)

var codeFence = regexp.MustCompile("(?:\\n|^)```\\w*(\\n[\\s\\S]*?\\n)```(?:\\n|$)")

// StripCodeFences removes markdown code block delimiters and keeps their
// contents, so fenced JSON answers can be parsed.
func StripCodeFences(s string) string {
	return codeFence.ReplaceAllString(s, "$1")
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
