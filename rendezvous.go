package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/semihalev/rendezvous/api"
	"github.com/semihalev/rendezvous/config"
	"github.com/semihalev/rendezvous/metrics"
	"github.com/semihalev/rendezvous/registry"
	"github.com/semihalev/rendezvous/server"
	"github.com/semihalev/zlog/v2"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func newRootCmd() *cobra.Command {
	var cfgpath string

	cmd := &cobra.Command{
		Use:   "rendezvous",
		Short: "Rendezvous barrier service",
		Long: `Rendezvous pairs two clients that POST the same key to
/wait-for-second-party/{key}. The first client waits until the second one
arrives or 10 seconds pass, the second client returns immediately.`,
		Example:       "  rendezvous --config=rendezvous.conf",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgpath, version)
			if err != nil {
				return fmt.Errorf("config loading failed: %w", err)
			}

			setupLogger(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfgpath, "config", "c", "rendezvous.conf", "location of the config file, if config file not found, a config will generate")
	cmd.SetVersionTemplate("Rendezvous v{{.Version}}\n")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	zlog.Info("Starting rendezvous...", "version", cfg.ServerVersion())

	m := metrics.New(prometheus.DefaultRegisterer)
	reg := registry.New(registry.WithObserver(m))
	m.Bind(reg.Len)

	a := api.New(cfg, reg, m)
	a.Run(ctx)

	srv := server.New(cfg, a)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	zlog.Info("Stopping rendezvous...")

	return nil
}

func setupLogger(level string) {
	logger := zlog.NewStructured()
	logger.SetWriter(zlog.StdoutTerminal())
	logger.SetLevel(parseLevel(level))
	zlog.SetDefault(logger)
}

func parseLevel(level string) zlog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zlog.LevelDebug
	case "warn", "warning":
		return zlog.LevelWarn
	case "error", "crit":
		return zlog.LevelError
	default:
		return zlog.LevelInfo
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
