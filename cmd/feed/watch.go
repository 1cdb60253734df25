package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"midgardFeed/internal/config"
	"midgardFeed/internal/midgard"
	"midgardFeed/internal/observability"
	"midgardFeed/internal/provider"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWatch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	metrics := observability.NewMetrics(reg)

	client, err := midgard.NewClient(cfg.Source.ClientConfig(metrics), logger)
	if err != nil {
		return err
	}

	out, err := openSinks(ctx, cfg.Sinks, reg, metrics, logger)
	if err != nil {
		return err
	}
	defer out.Close()

	realtime, err := provider.NewRealtime(cfg.Realtime, client, out.listener, logger, metrics)
	if err != nil {
		return err
	}

	logger.Info("watch start",
		zap.String("network", client.Network().ID),
		zap.String("schema", string(client.Schema())),
		zap.Duration("tick_interval", cfg.Realtime.TickInterval),
		zap.Int("max_pages", cfg.Realtime.MaxPages),
		zap.Int("page_size", cfg.Realtime.PageSize),
		zap.Bool("suppress_errors", cfg.Realtime.SuppressErrors),
	)

	if err := realtime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("watch stopped")
	return nil
}
