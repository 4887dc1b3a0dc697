// Package answer normalizes model output into the response shapes handed
// back to the HTTP layer.
package answer

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// summaryLimit caps the raw-text prefix carried into a stub summary.
const summaryLimit = 800

// Structured is the fixed schema for structured output mode.
type Structured struct {
	Summary   string    `json:"summary"`
	Artifacts Artifacts `json:"artifacts"`
	Sources   []Source  `json:"sources"`
}

// Artifacts groups the QA artifacts a structured answer may carry.
type Artifacts struct {
	TestCases           []TestCase `json:"test_cases"`
	AcceptanceCriteria  []string   `json:"acceptance_criteria"`
	ValidationChecklist []string   `json:"validation_checklist"`
	Risks               []string   `json:"risks"`
	OpenQuestions       []string   `json:"open_questions"`
}

// TestCase is a single generated test case.
type TestCase struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Type           string   `json:"type"`
	Steps          []string `json:"steps"`
	ExpectedResult string   `json:"expected_result"`
	Tags           []string `json:"tags"`
	Traceability   []string `json:"traceability"`
}

// Source names a knowledge-base document backing an answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ParseStructured normalizes raw model output that is supposed to be a
// single JSON object. It tries a strict parse first, then the substring
// between the first "{" and the last "}", and finally degrades to a stub
// carrying the beginning of the raw text as summary. It never fails: the
// caller always receives a well-shaped value.
func ParseStructured(raw string) Structured {
	var out Structured
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end > start {
		out = Structured{}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err == nil {
			return out
		}
	}

	return Structured{
		Summary:   truncate(raw, summaryLimit),
		Artifacts: emptyArtifacts(),
		Sources:   []Source{},
	}
}

// emptyArtifacts keeps the stub serializing with empty arrays, matching the
// schema promised to clients.
func emptyArtifacts() Artifacts {
	return Artifacts{
		TestCases:           []TestCase{},
		AcceptanceCriteria:  []string{},
		ValidationChecklist: []string{},
		Risks:               []string{},
		OpenQuestions:       []string{},
	}
}

// MergeSources appends extra sources not already present, keyed by
// (title, url). The primary list keeps its order and is deduplicated too.
func MergeSources(primary, extra []Source) []Source {
	seen := make(map[Source]bool, len(primary)+len(extra))
	merged := make([]Source, 0, len(primary)+len(extra))
	for _, s := range primary {
		if !seen[s] {
			seen[s] = true
			merged = append(merged, s)
		}
	}
	for _, s := range extra {
		if !seen[s] {
			seen[s] = true
			merged = append(merged, s)
		}
	}
	return merged
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
