package highlight

import (
	"html"
	"slices"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "Hello World", want: "hello world"},
		{in: "  a \t\n b  ", want: " a b "},
		{in: "It&#39;s", want: "it's"},
		{in: "We’re ‘here’", want: "we're 'here'"},
		{in: "&#34;Quote&#34; “this”", want: `"quote" "this"`},
		{in: "R&amp;D &lt;x&gt;", want: "r&amp;d &lt;x&gt;"},
		{in: "ÄÖÜ straße", want: "äöü straße"},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in).Text; got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"You   SHOULD\tdo your part",
		"it&#39;s  up to &quot;you&quot;",
		"We’re  “failing”",
		"&amp;#39; stays literal",
		" leading and trailing ",
		"İstanbul ΣΊΣΥΦΟΣ",
	}
	for _, in := range inputs {
		once := Normalize(in).Text
		if twice := Normalize(once).Text; twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalize_OffsetMap(t *testing.T) {
	t.Parallel()

	src := "It&#39;s   OK"
	n := Normalize(src)
	if n.Text != "it's ok" {
		t.Fatalf("Text = %q", n.Text)
	}

	// canonical byte -> source byte
	want := map[int]int{0: 0, 1: 1, 2: 2, 3: 7, 4: 8, 5: 11, 6: 12, 7: 13}
	for c, s := range want {
		if got := n.Source(c); got != s {
			t.Errorf("Source(%d) = %d, want %d", c, got, s)
		}
	}
	if got := n.Source(100); got != len(src) {
		t.Errorf("Source past end = %d, want %d", got, len(src))
	}
}

func TestDocument_InsideEntity(t *testing.T) {
	t.Parallel()

	d := Prepare(`a & "b"`)
	if d.Text != "a &amp; &#34;b&#34;" {
		t.Fatalf("Text = %q", d.Text)
	}
	inside := map[int]bool{
		0: false, 1: false, 2: false,
		3: true, 4: true, 5: true, 6: true,
		7: false, 8: false,
		9: true, 12: true,
		13: false,
	}
	for pos, want := range inside {
		if got := d.insideEntity(pos); got != want {
			t.Errorf("insideEntity(%d) = %v, want %v", pos, got, want)
		}
	}
}

func TestComposeNFC(t *testing.T) {
	t.Parallel()

	if got, offsets := composeNFC("caf\u00e9"); got != "caf\u00e9" || offsets != nil {
		t.Errorf("composed input: got %q, %v; want unchanged and a nil map", got, offsets)
	}

	// "e" + U+0301 (3 bytes) composes to "\u00e9" (2 bytes).
	got, offsets := composeNFC("e\u0301x")
	if got != "\u00e9x" {
		t.Fatalf("composeNFC = %q, want %q", got, "\u00e9x")
	}
	if want := []int{0, 0, 3, 4}; !slices.Equal(offsets, want) {
		t.Errorf("offsets = %v, want %v", offsets, want)
	}
}

func TestPrepare_KeepsDecomposedText(t *testing.T) {
	t.Parallel()

	in := "Cafe\u0301 & co"
	d := Prepare(in)
	if want := html.EscapeString(in); d.Text != want {
		t.Errorf("Text = %q, want %q", d.Text, want)
	}
	if d.match != "Caf\u00e9 &amp; co" {
		t.Errorf("match = %q", d.match)
	}
	if got := d.textOffset(len("Caf\u00e9")); got != len("Cafe\u0301") {
		t.Errorf("textOffset after the composed rune = %d, want %d", got, len("Cafe\u0301"))
	}
}

func TestPrepare_Tokens(t *testing.T) {
	t.Parallel()

	d := Prepare("  We’re   failing\tnow ")
	var got []string
	for _, tok := range d.tokens {
		got = append(got, d.canon.Text[tok.start:tok.end])
	}
	want := []string{"we're", "failing", "now"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExactPattern(t *testing.T) {
	t.Parallel()

	if _, ok := exactPattern("   "); ok {
		t.Error("exactPattern(blank) ok = true, want false")
	}
	p, ok := exactPattern("r&d  plan")
	if !ok {
		t.Fatal("exactPattern ok = false")
	}
	if want := `(?i)r&amp;d` + whitespaceClass + `plan`; p != want {
		t.Errorf("pattern = %q, want %q", p, want)
	}
}
