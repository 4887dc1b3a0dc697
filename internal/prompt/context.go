// Package prompt assembles knowledge-base excerpts and user questions into
// the prompts sent to the generation backend.
package prompt

import (
	"strings"
	"unicode/utf8"
)

const (
	// ContextSeparator joins excerpts in the assembled context block.
	ContextSeparator = "\n\n---\n\n"
	// TruncationMarker terminates a context block cut at the character budget.
	TruncationMarker = "\n\n---(truncado)---"
)

// BuildContext joins excerpts with ContextSeparator and enforces the
// character budget. The result, marker included, never exceeds maxChars.
func BuildContext(excerpts []string, maxChars int) string {
	if len(excerpts) == 0 {
		return ""
	}

	text := strings.Join(excerpts, ContextSeparator)
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	cut := maxChars - len(TruncationMarker)
	if cut < 0 {
		cut = 0
	}
	// The budget wins over the marker: with a budget smaller than the
	// marker itself, the marker is cut too.
	return truncate(truncate(text, cut)+TruncationMarker, maxChars)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
