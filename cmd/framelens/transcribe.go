package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/framelens/internal/app"
	"github.com/MrWong99/framelens/internal/config"
	"github.com/MrWong99/framelens/internal/transcription"
)

func newTranscribeCmd(g *globalFlags) *cobra.Command {
	var (
		language  string
		threshold int
		format    string
	)
	cmd := &cobra.Command{
		Use:   "transcribe <media>",
		Short: "Transcribe an audio or video file and highlight the transcript",
		Long: "Transcribe an mp3, mp4, m4a, wav or webm file with the configured backends.\n" +
			"--language accepts an ISO code (\"de\"), a name (\"German\") or \"Auto\".\n" +
			"Without --language the backend's configured language applies.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			a, err := app.New(cfg, app.WithRegistry(reg))
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Shutdown(ctx)
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Server.RequestTimeout)
			defer cancel()
			tr, err := a.Transcriber().Transcribe(ctx, transcription.Request{
				Data:     data,
				Filename: filepath.Base(args[0]),
				Language: language,
			})
			if err != nil {
				return fmt.Errorf("transcribe %s: %w", args[0], err)
			}

			snap := a.Snapshot()
			if !cmd.Flags().Changed("threshold") {
				threshold = snap.Threshold
			}
			res := snap.Highlighter.Highlight(tr.Text, threshold)
			return writeResult(cmd.OutOrStdout(), format, filepath.Base(args[0]), res, snap.Highlighter.Taxonomy(), tr)
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "spoken language (ISO code, name or Auto)")
	cmd.Flags().IntVarP(&threshold, "threshold", "t", 80, "fuzzy similarity threshold, clamped to [50, 100]")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, html, page or json")
	return cmd
}
