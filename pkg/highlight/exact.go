package highlight

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/framelens/pkg/taxonomy"
)

// whitespaceClass matches one or more of the runes unicode.IsSpace accepts.
const whitespaceClass = `[\s\x0B\x{85}\p{Z}]+`

// quoteClasses match every spelling of a quote the escaped text can contain.
var quoteClasses = map[rune]string{
	'\'': `(?:'|&#39;|&#x27;|’|‘|‛|ʼ|′)`,
	'"':  `(?:"|&#34;|&quot;|&#x22;|“|”|„|‟|″)`,
}

// exactPattern builds the case-insensitive pattern for phrase. Internal
// whitespace matches any whitespace run, quotes match any of their variants
// and every other rune matches its HTML-escaped form. ok is false for blank
// phrases.
func exactPattern(phrase string) (pattern string, ok bool) {
	words := strings.FieldsFunc(norm.NFC.String(phrase), unicode.IsSpace)
	if len(words) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString("(?i)")
	for i, w := range words {
		if i > 0 {
			b.WriteString(whitespaceClass)
		}
		for _, r := range w {
			if q, isQuote := unifyQuote(r); isQuote {
				b.WriteString(quoteClasses[q])
				continue
			}
			b.WriteString(regexp.QuoteMeta(html.EscapeString(string(r))))
		}
	}
	return b.String(), true
}

func compileExact(phrase string) (*regexp.Regexp, error) {
	pattern, ok := exactPattern(phrase)
	if !ok {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("highlight: compile phrase %q: %w", phrase, err)
	}
	return re, nil
}

// findExact scans the match text of d for non-overlapping occurrences of re,
// left to right. A match is kept only if it is not flanked by word characters
// on either side and does not start or end inside an HTML entity. When a match
// is rejected the scan resumes one rune after its start. Candidate offsets
// index d.Text.
func findExact(d *Document, re *regexp.Regexp, e taxonomy.Entry) []Candidate {
	if re == nil || d.match == "" {
		return nil
	}
	text := d.match
	var out []Candidate
	for pos := 0; pos < len(text); {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if start < end && d.acceptable(start, end) {
			out = append(out, Candidate{
				Start:    d.textOffset(start),
				End:      d.textOffset(end),
				Category: e.Category,
				Kind:     KindExact,
				Phrase:   e.Phrase,
				Score:    100,
			})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + max(size, 1)
	}
	return out
}

// acceptable applies the boundary policy to [start, end) of the match text.
func (d *Document) acceptable(start, end int) bool {
	if d.insideEntity(start) || d.insideEntity(end) {
		return false
	}
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(d.match[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(d.match) {
		r, _ := utf8.DecodeRuneInString(d.match[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// FindExact returns every exact candidate for every phrase of tax in d, in
// taxonomy order and then by offset.
func FindExact(d *Document, tax *taxonomy.Taxonomy) ([]Candidate, error) {
	h, err := New(tax, WithWorkers(1), WithoutFuzzy())
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for i := range h.phrases {
		out = append(out, findExact(d, h.phrases[i].exact, h.phrases[i].entry)...)
	}
	return out, nil
}
