// Package highlight finds taxonomy phrases in text and resolves them into a
// single non-overlapping annotation.
//
// The data flow for one call is:
//
//	raw text ──Prepare──▶ Document (escaped text + canonical form + offset map)
//	          ──▶ exact matcher ─┐
//	          ──▶ fuzzy matcher ─┴─▶ candidates ──Resolve──▶ []Span
//
// Every offset this package reports is a half-open byte range into the
// HTML-escaped text ([Result.Text]). Spans always fall on rune and entity
// boundaries, so a renderer may slice the escaped text at span edges and emit
// the pieces verbatim.
//
// Exact matching is case-insensitive, tolerates any whitespace run where a
// phrase has a space, treats curly, straight and escaped quotes alike, and
// requires that the match is not preceded or followed by a letter, digit or
// underscore. Approximate matching only considers phrases of two or more
// words and scores token windows with [Ratio].
//
// A [Highlighter] is immutable after construction and safe for concurrent use.
package highlight

import (
	"html"
	"regexp"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/framelens/pkg/taxonomy"
)

// Threshold bounds and default for approximate matching.
const (
	MinThreshold     = 50
	MaxThreshold     = 100
	DefaultThreshold = 80
)

// ClampThreshold limits t to [MinThreshold, MaxThreshold].
func ClampThreshold(t int) int {
	return min(max(t, MinThreshold), MaxThreshold)
}

// Option configures a [Highlighter].
type Option func(*Highlighter)

// WithWorkers bounds how many phrases are scanned concurrently within one
// call. Values below 1 mean sequential scanning. The default is GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(h *Highlighter) { h.workers = max(n, 1) }
}

// WithoutFuzzy disables approximate matching.
func WithoutFuzzy() Option {
	return func(h *Highlighter) { h.fuzzy = false }
}

// compiledPhrase holds everything needed to search for one taxonomy entry.
type compiledPhrase struct {
	entry  taxonomy.Entry
	exact  *regexp.Regexp
	canon  string
	tokens int
}

// Highlighter matches a fixed taxonomy against arbitrary texts.
type Highlighter struct {
	tax     *taxonomy.Taxonomy
	phrases []compiledPhrase
	workers int
	fuzzy   bool
}

// New compiles every phrase of tax. A nil taxonomy is treated as empty.
func New(tax *taxonomy.Taxonomy, opts ...Option) (*Highlighter, error) {
	h := &Highlighter{
		tax:     tax,
		workers: runtime.GOMAXPROCS(0),
		fuzzy:   true,
	}
	for _, o := range opts {
		o(h)
	}

	for _, e := range tax.Entries() {
		re, err := compileExact(e.Phrase)
		if err != nil {
			return nil, err
		}
		if re == nil {
			continue
		}
		canon := canonicalPhrase(e.Phrase)
		h.phrases = append(h.phrases, compiledPhrase{
			entry:  e,
			exact:  re,
			canon:  canon,
			tokens: tokenCount(canon),
		})
	}
	return h, nil
}

// Taxonomy returns the taxonomy the highlighter was built from.
func (h *Highlighter) Taxonomy() *taxonomy.Taxonomy { return h.tax }

// Stats counts the candidates produced during one call.
type Stats struct {
	Exact int `json:"exact"`
	Fuzzy int `json:"fuzzy"`
}

// Result is the outcome of one highlighting call.
type Result struct {
	// Text is the escaped text the spans index into.
	Text string `json:"text"`

	// Spans are disjoint and ordered by Start.
	Spans []Span `json:"spans"`

	// Threshold is the clamped threshold that was applied.
	Threshold int `json:"threshold"`

	Stats Stats `json:"stats"`
}

// Highlight annotates text. The threshold is clamped to
// [MinThreshold, MaxThreshold]. Empty text yields an empty result.
func (h *Highlighter) Highlight(text string, threshold int) Result {
	threshold = ClampThreshold(threshold)
	if text == "" {
		return Result{Text: "", Spans: []Span{}, Threshold: threshold}
	}
	doc := Prepare(text)
	cands, stats := h.candidates(doc, threshold)
	return Result{
		Text:      doc.Text,
		Spans:     Resolve(cands, doc.Len()),
		Threshold: threshold,
		Stats:     stats,
	}
}

// candidates runs both matchers for every phrase. Each phrase writes into its
// own slot and slots are concatenated in taxonomy order, so the outcome does
// not depend on scheduling. Within a slot exact candidates precede fuzzy ones.
// Taxonomy order is what lets the first-declared category win equal-length
// ties in [Resolve], whatever the kind of either candidate.
func (h *Highlighter) candidates(doc *Document, threshold int) ([]Candidate, Stats) {
	exact := make([][]Candidate, len(h.phrases))
	fuzzy := make([][]Candidate, len(h.phrases))

	scan := func(i int) {
		p := &h.phrases[i]
		exact[i] = findExact(doc, p.exact, p.entry)
		if h.fuzzy {
			fuzzy[i] = findFuzzy(doc, p.canon, p.tokens, p.entry, threshold)
		}
	}

	if h.workers <= 1 || len(h.phrases) < 2 {
		for i := range h.phrases {
			scan(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(h.workers)
		for i := range h.phrases {
			g.Go(func() error {
				scan(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	var (
		out   []Candidate
		stats Stats
	)
	for i := range h.phrases {
		out = append(out, exact[i]...)
		out = append(out, fuzzy[i]...)
		stats.Exact += len(exact[i])
		stats.Fuzzy += len(fuzzy[i])
	}
	return out, stats
}

// Segment is a run of escaped text that is either plain (Category == "") or
// belongs to one span.
type Segment struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
	Kind     Kind   `json:"kind,omitempty"`
}

// Segments walks the result linearly and returns plain and highlighted runs
// whose concatenation is exactly r.Text.
func (r Result) Segments() []Segment {
	var out []Segment
	pos := 0
	for _, s := range r.Spans {
		if s.Start < pos || s.End > len(r.Text) {
			continue
		}
		if s.Start > pos {
			out = append(out, Segment{Text: r.Text[pos:s.Start]})
		}
		out = append(out, Segment{Text: r.Text[s.Start:s.End], Category: s.Category, Kind: s.Kind})
		pos = s.End
	}
	if pos < len(r.Text) {
		out = append(out, Segment{Text: r.Text[pos:]})
	}
	return out
}

// Plain returns the unescaped text of the result, which equals the input
// for valid UTF-8.
func (r Result) Plain() string {
	return html.UnescapeString(r.Text)
}
