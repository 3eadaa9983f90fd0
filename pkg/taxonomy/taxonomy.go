// Package taxonomy defines the phrase taxonomy used by the highlighter: an
// ordered list of categories, each carrying a display colour and an ordered set
// of phrases.
//
// A [Taxonomy] is immutable once constructed. It may be shared between any
// number of goroutines without synchronisation.
//
// Declaration order matters in two places: it is the order of the legend shown
// to users, and it breaks ties between equally long phrases of different
// categories that match the same text (the first-declared category wins).
package taxonomy

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Category is a single labelled phrase set.
type Category struct {
	// ID is the stable identifier of the category (e.g. "collective_we").
	ID string `yaml:"id" json:"id"`

	// Label is the human-readable name shown in legends. When empty it is
	// derived from ID (see [Category.DisplayLabel]).
	Label string `yaml:"label,omitempty" json:"label,omitempty"`

	// Color is an opaque display token, typically a CSS colour such as
	// "#fffa65". The highlighter never interprets it.
	Color string `yaml:"color" json:"color"`

	// Phrases lists the phrases belonging to this category in declaration
	// order. Phrases may contain internal spaces. A category without phrases
	// is valid and simply never matches.
	Phrases []string `yaml:"phrases" json:"phrases"`
}

// DisplayLabel returns Label, or a title-cased form of ID when Label is empty
// ("collective_we" becomes "Collective We").
func (c Category) DisplayLabel() string {
	if c.Label != "" {
		return c.Label
	}
	words := strings.FieldsFunc(c.ID, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = strings.ToUpper(string(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// Entry is one phrase of the flattened taxonomy together with its category.
type Entry struct {
	// Category is the ID of the category the phrase belongs to.
	Category string

	// Phrase is the phrase exactly as declared (surrounding whitespace trimmed).
	Phrase string

	// Order is the position of the entry in the flattened declaration order.
	Order int
}

// Taxonomy is an immutable, ordered collection of categories.
type Taxonomy struct {
	categories []Category
	index      map[string]int
	entries    []Entry
}

// New validates categories and returns a [Taxonomy] holding a private copy of
// them. Phrases are trimmed and blank phrases dropped; a phrase repeated
// inside the same category is kept only once. Repeats across categories are
// allowed.
//
// New returns a joined error listing every validation failure found.
func New(categories ...Category) (*Taxonomy, error) {
	t := &Taxonomy{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]int, len(categories)),
	}

	var errs []error
	for i, c := range categories {
		prefix := fmt.Sprintf("categories[%d]", i)
		id := strings.TrimSpace(c.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := t.index[id]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of categories[%d]", prefix, id, prev))
			continue
		}
		if strings.TrimSpace(c.Color) == "" {
			errs = append(errs, fmt.Errorf("%s (%s).color is required", prefix, id))
		}
		if strings.ContainsAny(c.Color, `<>"';`) {
			errs = append(errs, fmt.Errorf("%s (%s).color %q contains characters that are not allowed", prefix, id, c.Color))
		}

		seen := make(map[string]struct{}, len(c.Phrases))
		phrases := make([]string, 0, len(c.Phrases))
		for _, p := range c.Phrases {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			key := strings.ToLower(p)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			phrases = append(phrases, p)
		}

		t.index[id] = len(t.categories)
		t.categories = append(t.categories, Category{
			ID:      id,
			Label:   strings.TrimSpace(c.Label),
			Color:   strings.TrimSpace(c.Color),
			Phrases: phrases,
		})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("taxonomy: invalid: %w", err)
	}

	for _, c := range t.categories {
		for _, p := range c.Phrases {
			t.entries = append(t.entries, Entry{Category: c.ID, Phrase: p, Order: len(t.entries)})
		}
	}
	return t, nil
}

// MustNew is like [New] but panics on error. Intended for package-level
// literals and tests.
func MustNew(categories ...Category) *Taxonomy {
	t, err := New(categories...)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of categories. A nil Taxonomy has length zero.
func (t *Taxonomy) Len() int {
	if t == nil {
		return 0
	}
	return len(t.categories)
}

// Categories returns a copy of the categories in declaration order.
func (t *Taxonomy) Categories() []Category {
	if t == nil {
		return nil
	}
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		c.Phrases = append([]string(nil), c.Phrases...)
		out[i] = c
	}
	return out
}

// Category looks up a category by ID.
func (t *Taxonomy) Category(id string) (Category, bool) {
	if t == nil {
		return Category{}, false
	}
	i, ok := t.index[id]
	if !ok {
		return Category{}, false
	}
	c := t.categories[i]
	c.Phrases = append([]string(nil), c.Phrases...)
	return c, true
}

// Rank returns the declaration position of the category, or -1 if unknown.
func (t *Taxonomy) Rank(id string) int {
	if t == nil {
		return -1
	}
	if i, ok := t.index[id]; ok {
		return i
	}
	return -1
}

// Entries returns every phrase of every category, flattened in declaration
// order (category first, then phrase).
func (t *Taxonomy) Entries() []Entry {
	if t == nil {
		return nil
	}
	return append([]Entry(nil), t.entries...)
}

// PhraseCount returns the total number of phrases across all categories.
func (t *Taxonomy) PhraseCount() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
