// Package intent detects user goals embedded in free text — "send an email",
// "search the web" — as opposed to the action items the extraction adapter
// pulls out. Detection is pure pattern matching; no state is kept between
// calls.
package intent

import (
	"regexp"
	"strings"
)

// maxSearchQueries caps searches per note; each query costs a full web
// search round-trip downstream.
const maxSearchQueries = 2

// searchPatterns are tried in priority order; the first capture group is the
// candidate query.
var searchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:search\s+(?:for|about)?)\s+['"]?(.+?)['"]?(?:\.|$|,|\?)`),
	regexp.MustCompile(`(?:find\s+(?:out|information|info)?\s*(?:about)?)\s+['"]?(.+?)['"]?(?:\.|$|,|\?)`),
	regexp.MustCompile(`(?:look\s+up)\s+['"]?(.+?)['"]?(?:\.|$|,|\?)`),
	regexp.MustCompile(`(?:google)\s+['"]?(.+?)['"]?(?:\.|$|,|\?)`),
	regexp.MustCompile(`(?:what\s+is|what\s+are|who\s+is|how\s+to)\s+(.+?)(?:\?|$|\.)`),
	regexp.MustCompile(`(?:research)\s+['"]?(.+?)['"]?(?:\.|$|,|\?)`),
	regexp.MustCompile(`(?:tell\s+me\s+about)\s+['"]?(.+?)['"]?(?:\.|$|,|\?)`),
	regexp.MustCompile(`(?:ask\s+google)\s+(?:about)?\s*['"]?(.+?)['"]?(?:\.|$|,|\?)`),
}

var emailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:write|rite)\s+(?:an\s+)?email\s+to`),
	regexp.MustCompile(`send\s+(?:an\s+)?email\s+to`),
	regexp.MustCompile(`draft\s+(?:an\s+)?email\s+for`),
}

// DetectSearchQueries extracts web search queries from free text. Queries are
// trimmed and lower-cased, candidates of length <= 2 or duplicating an
// earlier candidate are dropped, and at most two queries are returned.
func DetectSearchQueries(text string) []string {
	lower := strings.ToLower(text)

	var queries []string
	seen := make(map[string]bool)
	for _, p := range searchPatterns {
		for _, m := range p.FindAllStringSubmatch(lower, -1) {
			q := strings.TrimSpace(m[1])
			if len(q) <= 2 || seen[q] {
				continue
			}
			seen[q] = true
			queries = append(queries, q)
		}
	}

	if len(queries) > maxSearchQueries {
		queries = queries[:maxSearchQueries]
	}
	return queries
}

// DetectEmailIntent reports whether the text asks to write or send an email.
func DetectEmailIntent(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range emailPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}
