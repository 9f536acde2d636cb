// Package suggest finds near matches for mistyped identifiers such as
// project keys, using Levenshtein distance.
package suggest

import (
	"cmp"
	"slices"
	"strings"
)

// Limit caps how many suggestions Closest returns.
const Limit = 3

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Closest returns up to Limit candidates within edit distance of unknown,
// best first. Comparison ignores case; ties keep candidate order.
func Closest(unknown string, candidates []string) []string {
	unknown = strings.ToLower(strings.TrimSpace(unknown))
	if unknown == "" {
		return nil
	}

	type scored struct {
		value string
		dist  int
	}
	maxDist := max(2, len(unknown)/2)
	var hits []scored
	for _, c := range candidates {
		if d := levenshtein(unknown, strings.ToLower(c)); d <= maxDist {
			hits = append(hits, scored{c, d})
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int { return cmp.Compare(a.dist, b.dist) })

	var out []string
	for i := 0; i < len(hits) && i < Limit; i++ {
		out = append(out, hits[i].value)
	}
	return out
}

// Hint formats suggestions as a "did you mean" suffix, or "" when there are
// none.
func Hint(suggestions []string) string {
	if len(suggestions) == 0 {
		return ""
	}
	return " (did you mean " + strings.Join(suggestions, ", ") + "?)"
}
