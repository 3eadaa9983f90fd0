package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/MrWong99/framelens/internal/app"
	"github.com/MrWong99/framelens/internal/config"
	"github.com/MrWong99/framelens/internal/observe"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		listen        string
		watchInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Serve /v1/highlight, /v1/transcribe, /v1/legend and /v1/languages plus health probes and /metrics.\n" +
			"Edits to the taxonomy file are picked up automatically; SIGHUP forces a re-read.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.ListenAddr = listen
			}
			return serve(cmd.Context(), g.configPath, cfg, watchInterval)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address overriding server.listen_addr")
	cmd.Flags().DurationVar(&watchInterval, "watch-interval", 5*time.Second, "config file polling interval for hot reload")
	return cmd
}

func serve(parent context.Context, configPath string, cfg *config.Config, watchInterval time.Duration) error {
	level := new(slog.LevelVar)
	logger, logCloser := newLogger(cfg.Server, level)
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("framelens starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"providers", len(cfg.Transcription.Providers),
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Registry:       promReg,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	application, err := app.New(cfg,
		app.WithRegistry(reg),
		app.WithLevelVar(level),
		app.WithGatherer(promReg),
		app.WithVersion(version),
	)
	if err != nil {
		return err
	}
	if configPath != "" {
		if err := application.WatchConfig(configPath, watchInterval); err != nil {
			return err
		}
	}
	if err := application.WatchTaxonomy(); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := application.Reload(); err != nil {
					slog.Error("taxonomy reload failed", "err", err)
				} else {
					slog.Info("taxonomy reloaded")
				}
			}
		}
	}()

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	return runErr
}
