package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/framelens/pkg/render"
)

func newLegendCmd(g *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "legend",
		Short: "Print the taxonomy categories and their colours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			tax, err := loadTaxonomy(cfg.Highlight.TaxonomyFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch format {
			case formatJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(render.Legend(tax))
			case formatHTML:
				s, err := render.LegendHTML(tax)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, s)
				return err
			case formatText:
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CATEGORY\tLABEL\tCOLOR\tPHRASES")
				for _, e := range render.Legend(tax) {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.ID, e.Label, e.Color, e.Phrases)
				}
				return tw.Flush()
			}
			return fmt.Errorf("unknown format %q (want text, json or html)", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json or html")
	return cmd
}
