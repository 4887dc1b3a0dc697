// Package intent decides whether a chat message asks for structured JSON
// artifacts instead of a free-form markdown answer.
package intent

import "regexp"

// structuredPatterns indicate QA artifact requests or explicit JSON asks.
var structuredPatterns = []string{
	`\bcasos?\s+de\s+teste\b`,
	`\btest\s*cases?\b`,
	`\bcrit[ée]rios?\s+de\s+aceita[cç][aã]o\b`,
	`\bchecklist\b`,
	`\bplano\s+de\s+teste\b`,
	`\bmatriz\s+de\s+teste\b`,
	`\bretorne?\s+json\b`,
	`\bformato\s+json\b`,
}

// Detector classifies messages by desired output format.
type Detector struct {
	patterns []*regexp.Regexp
}

// NewDetector compiles the trigger patterns once for reuse across requests.
func NewDetector() *Detector {
	compiled := make([]*regexp.Regexp, len(structuredPatterns))
	for i, p := range structuredPatterns {
		compiled[i] = regexp.MustCompile(`(?i)` + p)
	}
	return &Detector{patterns: compiled}
}

// WantsStructured reports whether the message asks for structured output.
func (d *Detector) WantsStructured(message string) bool {
	for _, rx := range d.patterns {
		if rx.MatchString(message) {
			return true
		}
	}
	return false
}
