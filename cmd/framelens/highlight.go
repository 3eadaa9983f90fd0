package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/framelens/pkg/highlight"
	"github.com/MrWong99/framelens/pkg/render"
	"github.com/MrWong99/framelens/pkg/taxonomy"
)

// output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatHTML = "html"
	formatPage = "page"
)

func newHighlightCmd(g *globalFlags) *cobra.Command {
	var (
		threshold int
		format    string
		noFuzzy   bool
	)
	cmd := &cobra.Command{
		Use:   "highlight [file]",
		Short: "Highlight framing phrases in a text file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			text, title, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Highlight.DefaultThreshold
			}

			tax, err := loadTaxonomy(cfg.Highlight.TaxonomyFile)
			if err != nil {
				return err
			}
			var opts []highlight.Option
			if cfg.Highlight.Workers > 0 {
				opts = append(opts, highlight.WithWorkers(cfg.Highlight.Workers))
			}
			if noFuzzy {
				opts = append(opts, highlight.WithoutFuzzy())
			}
			h, err := highlight.New(tax, opts...)
			if err != nil {
				return err
			}
			res := h.Highlight(text, threshold)
			return writeResult(cmd.OutOrStdout(), format, title, res, tax, nil)
		},
	}
	cmd.Flags().IntVarP(&threshold, "threshold", "t", highlight.DefaultThreshold, "fuzzy similarity threshold, clamped to [50, 100]")
	cmd.Flags().StringVarP(&format, "format", "f", formatHTML, "output format: html, page, json or text")
	cmd.Flags().BoolVar(&noFuzzy, "no-fuzzy", false, "disable approximate matching")
	return cmd
}

// readInput returns the content of the file named by args[0], or stdin when
// no file is given, together with a title for page output.
func readInput(stdin io.Reader, args []string) (string, string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), "stdin", nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", err
	}
	return string(b), args[0], nil
}

func loadTaxonomy(path string) (*taxonomy.Taxonomy, error) {
	if path == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.Load(path)
}

// writeResult renders res in format. extra, when non-nil, is merged into the
// JSON output under "transcript".
func writeResult(w io.Writer, format, title string, res highlight.Result, tax *taxonomy.Taxonomy, extra any) error {
	switch strings.ToLower(format) {
	case formatText:
		_, err := io.WriteString(w, render.Text(res))
		return err
	case formatHTML:
		_, err := fmt.Fprintln(w, render.HTML(res, tax))
		return err
	case formatPage:
		return render.Page(w, title, res, tax)
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Transcript any                  `json:"transcript,omitempty"`
			Text       string               `json:"text"`
			Spans      []highlight.Span     `json:"spans"`
			Threshold  int                  `json:"threshold"`
			Stats      highlight.Stats      `json:"stats"`
			Legend     []render.LegendEntry `json:"legend"`
		}{extra, res.Text, res.Spans, res.Threshold, res.Stats, render.Legend(tax)})
	}
	return fmt.Errorf("unknown format %q (want html, page, json or text)", format)
}
