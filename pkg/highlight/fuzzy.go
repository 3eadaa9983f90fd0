package highlight

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/framelens/pkg/taxonomy"
)

// Ratio returns the normalised Indel similarity of a and b on a 0 to 100 scale:
// twice the longest common subsequence divided by the combined rune length.
// Two empty strings are identical (100).
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	lcs := matchr.LongestCommonSubsequence(a, b)
	return 100 * float64(2*lcs) / float64(total)
}

// fuzzyHit is one window that cleared the threshold.
type fuzzyHit struct {
	start, end int
	width      int
	score      float64
}

// findFuzzy slides windows of n-1, n and n+1 tokens over d and scores each
// against the canonical phrase. Phrases of fewer than two tokens are never
// matched approximately. Hits are emitted best score first, then by offset and
// width, so the resolver prefers the closest window among overlapping ones.
func findFuzzy(d *Document, canon string, tokens int, e taxonomy.Entry, threshold int) []Candidate {
	if tokens < 2 || len(d.tokens) == 0 {
		return nil
	}
	floor := float64(ClampThreshold(threshold))

	var hits []fuzzyHit
	for width := max(1, tokens-1); width <= tokens+1; width++ {
		for i := 0; i+width <= len(d.tokens); i++ {
			first, last := d.tokens[i], d.tokens[i+width-1]
			window := d.canon.Text[first.start:last.end]
			score := Ratio(window, canon)
			if score < floor {
				continue
			}
			start, end := d.canon.Source(first.start), d.canon.Source(last.end)
			if start >= end || d.insideEntity(start) || d.insideEntity(end) {
				continue
			}
			start, end = d.textOffset(start), d.textOffset(end)
			hits = append(hits, fuzzyHit{start: start, end: end, width: width, score: score})
		}
	}

	slices.SortStableFunc(hits, func(a, b fuzzyHit) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.start, b.start); c != 0 {
			return c
		}
		return cmp.Compare(a.width, b.width)
	})

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, Candidate{
			Start:    h.start,
			End:      h.end,
			Category: e.Category,
			Kind:     KindFuzzy,
			Phrase:   e.Phrase,
			Score:    h.score,
		})
	}
	return out
}

// tokenCount returns the number of whitespace-separated tokens in a canonical
// phrase.
func tokenCount(canon string) int {
	return len(strings.Fields(canon))
}

// FindFuzzy returns every approximate candidate for the multi-word phrases of
// tax in d at the given threshold (clamped to [MinThreshold, MaxThreshold]).
func FindFuzzy(d *Document, tax *taxonomy.Taxonomy, threshold int) ([]Candidate, error) {
	h, err := New(tax, WithWorkers(1))
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for i := range h.phrases {
		p := &h.phrases[i]
		out = append(out, findFuzzy(d, p.canon, p.tokens, p.entry, threshold)...)
	}
	return out, nil
}
