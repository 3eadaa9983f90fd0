package highlight

import (
	"cmp"
	"slices"
	"unicode/utf8"
)

// Kind tells how a candidate was found.
type Kind string

const (
	KindExact Kind = "exact"
	KindFuzzy Kind = "fuzzy"
)

// Candidate is a tentative match. Candidates may overlap each other freely.
type Candidate struct {
	// Start and End are half-open byte offsets into the escaped text.
	Start int
	End   int

	Category string
	Kind     Kind

	// Phrase is the taxonomy phrase that produced the candidate. Its rune
	// length is the candidate's priority.
	Phrase string

	// Score is the similarity ratio (100 for exact matches).
	Score float64
}

// Span is an accepted, non-overlapping annotation of the escaped text.
type Span struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Category string `json:"category"`
	Kind     Kind   `json:"kind"`
	Phrase   string `json:"phrase"`
}

// Resolve turns overlapping candidates into disjoint spans over a text of n
// bytes. Candidates are considered longest phrase first; equally long phrases
// keep the order they were given in. A candidate is accepted only if none of
// its bytes has been claimed by an earlier acceptance; everything else is
// dropped. Candidates outside [0, n) or empty are ignored. The result is
// ordered by Start.
func Resolve(cands []Candidate, n int) []Span {
	order := make([]int, len(cands))
	lengths := make([]int, len(cands))
	for i := range cands {
		order[i] = i
		lengths[i] = utf8.RuneCountInString(cands[i].Phrase)
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(lengths[b], lengths[a])
	})

	claimed := make([]bool, max(n, 0))
	spans := make([]Span, 0)
	for _, i := range order {
		c := cands[i]
		if c.Start < 0 || c.End > n || c.Start >= c.End {
			continue
		}
		if slices.Contains(claimed[c.Start:c.End], true) {
			continue
		}
		for j := c.Start; j < c.End; j++ {
			claimed[j] = true
		}
		spans = append(spans, Span{
			Start:    c.Start,
			End:      c.End,
			Category: c.Category,
			Kind:     c.Kind,
			Phrase:   c.Phrase,
		})
	}

	slices.SortFunc(spans, func(a, b Span) int { return cmp.Compare(a.Start, b.Start) })
	return spans
}
