package pipeline

import (
	"strings"

	"github.com/salesops/gongsync/pkg/gong"
)

// filterCalls narrows calls by title keywords. An empty filter keeps
// everything. "a and b" requires every keyword to appear in the title;
// otherwise the filter is split on commas and whitespace and any keyword
// matches. Matching is case-insensitive.
func filterCalls(calls []gong.Call, filter string) []gong.Call {
	match := titleMatcher(filter)
	if match == nil {
		return calls
	}
	var kept []gong.Call
	for _, c := range calls {
		if match(c.Title) {
			kept = append(kept, c)
		}
	}
	return kept
}

// titleMatcher compiles the filter expression into a predicate, or nil
// when the filter is empty.
func titleMatcher(filter string) func(string) bool {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return nil
	}

	if strings.Contains(filter, " and ") {
		var keywords []string
		for _, k := range strings.Split(filter, " and ") {
			if k = strings.TrimSpace(k); k != "" {
				keywords = append(keywords, k)
			}
		}
		return func(title string) bool {
			t := strings.ToLower(title)
			for _, kw := range keywords {
				if !strings.Contains(t, kw) {
					return false
				}
			}
			return true
		}
	}

	var keywords []string
	for _, k := range strings.FieldsFunc(filter, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return func(title string) bool {
		t := strings.ToLower(title)
		for _, kw := range keywords {
			if strings.Contains(t, kw) {
				return true
			}
		}
		return false
	}
}
