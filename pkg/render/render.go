// Package render turns highlight results into presentable output: inline HTML
// with one coloured span per match, a category legend, a standalone HTML page
// and a plain-text transcript.
package render

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/MrWong99/framelens/pkg/highlight"
	"github.com/MrWong99/framelens/pkg/taxonomy"
)

// fallbackColor is used for spans whose category is not in the taxonomy.
const fallbackColor = "#dddddd"

// HTML returns res.Text with every span wrapped in a bold span coloured by
// its category. Text between spans is emitted unchanged; it is already
// escaped.
func HTML(res highlight.Result, tax *taxonomy.Taxonomy) string {
	var b strings.Builder
	b.Grow(len(res.Text) + len(res.Spans)*64)
	for _, seg := range res.Segments() {
		if seg.Category == "" {
			b.WriteString(seg.Text)
			continue
		}
		color := fallbackColor
		if c, ok := tax.Category(seg.Category); ok {
			color = c.Color
		}
		fmt.Fprintf(&b, `<span style="background-color: %s; font-weight: bold;">%s</span>`,
			template.HTMLEscapeString(color), seg.Text)
	}
	return b.String()
}

// LegendEntry is one row of the category key.
type LegendEntry struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Color   string `json:"color"`
	Phrases int    `json:"phrases"`
}

// Legend lists the categories of tax in declaration order.
func Legend(tax *taxonomy.Taxonomy) []LegendEntry {
	cats := tax.Categories()
	out := make([]LegendEntry, 0, len(cats))
	for _, c := range cats {
		out = append(out, LegendEntry{
			ID:      c.ID,
			Label:   c.DisplayLabel(),
			Color:   c.Color,
			Phrases: len(c.Phrases),
		})
	}
	return out
}

var legendTemplate = template.Must(template.New("legend").Parse(
	`<ul class="legend">{{range .}}<li><span style="background-color: {{.Color}}; font-weight: bold;">{{.Label}}</span></li>{{end}}</ul>`,
))

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
{{.Legend}}
<div class="transcript" style="white-space: pre-wrap;">{{.Body}}</div>
</body>
</html>
`))

// LegendHTML renders the category key as an HTML list.
func LegendHTML(tax *taxonomy.Taxonomy) (string, error) {
	var b strings.Builder
	if err := legendTemplate.Execute(&b, Legend(tax)); err != nil {
		return "", fmt.Errorf("render: legend: %w", err)
	}
	return b.String(), nil
}

// Page writes a standalone HTML document containing the legend and the
// highlighted text.
func Page(w io.Writer, title string, res highlight.Result, tax *taxonomy.Taxonomy) error {
	legend, err := LegendHTML(tax)
	if err != nil {
		return err
	}
	err = pageTemplate.Execute(w, struct {
		Title  string
		Legend template.HTML
		Body   template.HTML
	}{
		Title:  title,
		Legend: template.HTML(legend),
		Body:   template.HTML(HTML(res, tax)),
	})
	if err != nil {
		return fmt.Errorf("render: page: %w", err)
	}
	return nil
}

// Text returns the unescaped transcript, suitable for a plain-text download.
// The result always ends in a newline unless it is empty.
func Text(res highlight.Result) string {
	s := res.Plain()
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
