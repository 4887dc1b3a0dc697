// Package query expands a raw user message into alternate phrasings to
// improve recall against the search index.
package query

import (
	"fmt"
	"regexp"
)

// identifierPattern matches ticket/story style identifiers: a short
// alphabetic prefix, an optional separator and a numeric run, e.g.
// "US-1234", "US 1234", "us_1234" or "STORY1234".
var identifierPattern = regexp.MustCompile(`\b([A-Za-z]{1,8})[-_ ]?([0-9]{2,10})\b`)

// Expand produces an ordered, duplicate-free list of query variants for the
// raw user message. The original message is always first. When the message
// contains identifier-like tokens, alternate spellings of each identifier are
// appended so that documents indexed under any spelling are found.
func Expand(raw string) []string {
	variants := []string{raw}
	seen := map[string]bool{raw: true}

	add := func(v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		variants = append(variants, v)
	}

	for _, match := range identifierPattern.FindAllStringSubmatch(raw, -1) {
		prefix, num := match[1], match[2]
		add(fmt.Sprintf("%s-%s", prefix, num))
		add(fmt.Sprintf("%s %s", prefix, num))
		add(prefix + num)
		add(num)
		add("user story " + num)
	}

	return variants
}
