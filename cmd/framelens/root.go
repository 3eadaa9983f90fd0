package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/MrWong99/framelens/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	taxonomy   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "framelens",
		Short:         "framelens: highlight framing language in transcripts",
		Long:          "Find individualising, collective, greenwashing and moral-metaphor phrasing in text or transcribed media.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to the YAML configuration file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "KEY=VALUE file loaded into the environment before the config")
	root.PersistentFlags().StringVar(&g.taxonomy, "taxonomy", "", "taxonomy YAML overriding highlight.taxonomy_file")

	root.AddCommand(
		newServeCmd(g),
		newHighlightCmd(g),
		newTranscribeCmd(g),
		newLegendCmd(g),
	)
	return root
}

// loadConfig loads the env file and the config named by the global flags.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(g.envFile); err != nil {
		return nil, err
	}
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		cfg, err = config.Load(g.configPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %q not found: %w", g.configPath, err)
			}
			return nil, err
		}
	}
	if g.taxonomy != "" {
		cfg.Highlight.TaxonomyFile = g.taxonomy
	}
	return cfg, nil
}
