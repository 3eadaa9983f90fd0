package highlight

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Document is a text prepared for matching. Text holds the escaped form that
// every offset produced by this package indexes into.
type Document struct {
	// Text is the HTML-escaped input. It keeps the input's own Unicode
	// composition.
	Text string

	// match is the NFC form of Text that the matchers run on. toText maps
	// each of its bytes back to Text; nil means match == Text.
	match  string
	toText []int

	canon  Normalized
	tokens []token
}

// token is a whitespace-delimited run of the canonical text, as a half-open
// byte range [start, end) into Normalized.Text.
type token struct {
	start, end int
}

// Prepare converts raw input into a [Document]. The text is made valid UTF-8
// and HTML-escaped (& < > " ') before any offset is computed, so that offsets
// always agree with what a renderer will emit. Matching runs on the NFC form
// of the escaped text, so precomposed and decomposed spellings of a phrase
// match alike.
func Prepare(raw string) *Document {
	escaped := html.EscapeString(strings.ToValidUTF8(raw, "\uFFFD"))
	match, toText := composeNFC(escaped)
	d := &Document{
		Text:   escaped,
		match:  match,
		toText: toText,
		canon:  Normalize(match),
	}
	d.tokens = tokenize(d.canon.Text)
	return d
}

// composeNFC returns the NFC form of s with a map from each of its bytes to
// the start of the source segment that produced it. The map ends with
// len(s). A nil map means s is already in NFC.
func composeNFC(s string) (string, []int) {
	if norm.NFC.IsNormalString(s) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)
	for i := 0; i < len(s); {
		n := norm.NFC.NextBoundaryInString(s[i:], true)
		if n <= 0 {
			n = len(s) - i
		}
		seg := norm.NFC.String(s[i : i+n])
		b.WriteString(seg)
		for range len(seg) {
			offsets = append(offsets, i)
		}
		i += n
	}
	offsets = append(offsets, len(s))
	return b.String(), offsets
}

// textOffset maps a byte offset of the match text to Text. Offsets that fall
// inside a composed segment map to the segment's start.
func (d *Document) textOffset(i int) int {
	if d.toText == nil {
		return i
	}
	return d.toText[min(max(i, 0), len(d.toText)-1)]
}

// Canonical returns the comparison form of the document.
func (d *Document) Canonical() Normalized { return d.canon }

// Len returns the length of the escaped text in bytes.
func (d *Document) Len() int { return len(d.Text) }

// insideEntity reports whether byte offset pos of the match text falls
// strictly inside an HTML entity. Every '&' in escaped text starts an entity
// that runs to the next ';'.
func (d *Document) insideEntity(pos int) bool {
	if pos <= 0 || pos >= len(d.match) {
		return false
	}
	for k := pos - 1; k >= 0 && k >= pos-maxEntityLen; k-- {
		switch d.match[k] {
		case ';':
			return false
		case '&':
			return true
		}
	}
	return false
}

// maxEntityLen is the length of the longest entity html.EscapeString emits.
const maxEntityLen = len("&amp;")

// Normalized is the canonical comparison form of a text together with a map
// from every canonical byte back to the source text.
type Normalized struct {
	// Text is lower-cased, with typographic quotes unified and whitespace runs
	// collapsed to a single space.
	Text string

	// offsets[i] is the source offset of the sequence that produced canonical
	// byte i. offsets[len(Text)] is the source length.
	offsets []int
}

// Source maps a canonical byte offset to an offset in the source text. Offsets
// past either end are clamped.
func (n Normalized) Source(i int) int {
	if len(n.offsets) == 0 {
		return i
	}
	if i < 0 {
		return n.offsets[0]
	}
	if i >= len(n.offsets) {
		return n.offsets[len(n.offsets)-1]
	}
	return n.offsets[i]
}

// quoteEntities are the escaped forms of the two quote characters.
var quoteEntities = []struct {
	entity string
	quote  string
}{
	{"&#39;", "'"},
	{"&#x27;", "'"},
	{"&#34;", `"`},
	{"&quot;", `"`},
	{"&#x22;", `"`},
}

// Normalize canonicalises s for comparison. Every rune is lower-cased, curly
// and escaped quotes become their straight ASCII form, and each run of
// whitespace becomes a single space. Normalize is idempotent.
func Normalize(s string) Normalized {
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)

	emit := func(out string, src int) {
		b.WriteString(out)
		for range len(out) {
			offsets = append(offsets, src)
		}
	}

	inSpace := false
	for i := 0; i < len(s); {
		if s[i] == '&' {
			if ent, quote, ok := matchQuoteEntity(s[i:]); ok {
				emit(quote, i)
				i += len(ent)
				inSpace = false
				continue
			}
		}

		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			if !inSpace {
				emit(" ", i)
				inSpace = true
			}
			i += size
			continue
		}
		inSpace = false
		emit(string(foldRune(r)), i)
		i += size
	}
	offsets = append(offsets, len(s))
	return Normalized{Text: b.String(), offsets: offsets}
}

func matchQuoteEntity(s string) (entity, quote string, ok bool) {
	for _, q := range quoteEntities {
		if strings.HasPrefix(s, q.entity) {
			return q.entity, q.quote, true
		}
	}
	return "", "", false
}

// foldRune lower-cases r and unifies typographic quotes.
func foldRune(r rune) rune {
	if q, ok := unifyQuote(r); ok {
		return q
	}
	return unicode.ToLower(r)
}

// unifyQuote maps any apostrophe or double-quote variant to its ASCII form.
func unifyQuote(r rune) (rune, bool) {
	switch r {
	case '\'', '’', '‘', '‛', 'ʼ', '′':
		return '\'', true
	case '"', '“', '”', '„', '‟', '″':
		return '"', true
	}
	return r, false
}

// tokenize splits canonical text on its single-space separators.
func tokenize(canon string) []token {
	var toks []token
	start := -1
	for i := 0; i < len(canon); i++ {
		if canon[i] == ' ' {
			if start >= 0 {
				toks = append(toks, token{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, token{start, len(canon)})
	}
	return toks
}

// canonicalPhrase returns the comparison form of a phrase: prepared exactly
// like a document, normalised, with leading and trailing space removed.
func canonicalPhrase(phrase string) string {
	return strings.TrimSpace(Prepare(phrase).canon.Text)
}

// isWordRune reports whether r counts as part of a word for boundary checks.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
