// Package similarity ranks candidate names by edit distance for
// "did you mean" suggestions.
package similarity

import (
	"sort"

	"github.com/agext/levenshtein"
)

// DefaultCutoff is the minimum similarity a candidate needs to be
// suggested. 1.0 is an exact match.
const DefaultCutoff = 0.6

// Suggestion is a candidate with its similarity to the queried word.
type Suggestion struct {
	Name  string
	Score float64
}

// Rank scores every candidate against word and returns those at or above
// cutoff, best first. Ties keep candidate order. Comparison is
// case-sensitive; exact matches are skipped.
func Rank(word string, candidates []string, cutoff float64) []Suggestion {
	var out []Suggestion
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c == word || seen[c] {
			continue
		}
		seen[c] = true
		score := levenshtein.Similarity(word, c, nil)
		if score >= cutoff {
			out = append(out, Suggestion{Name: c, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Suggest returns up to n candidate names closest to word.
func Suggest(word string, candidates []string, n int) []string {
	ranked := Rank(word, candidates, DefaultCutoff)
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	names := make([]string, len(ranked))
	for i, s := range ranked {
		names[i] = s.Name
	}
	return names
}
