package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"midgardFeed/internal/config"
	"midgardFeed/internal/observability"
	"midgardFeed/internal/provider"
)

func runPlayback(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPlayback(cfgFile, cmd.Flags())
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

	out, err := openSinks(ctx, cfg.Sinks, reg, metrics, logger)
	if err != nil {
		return err
	}
	defer out.Close()

	playback, err := provider.NewPlayback(cfg.Playback, out.listener, logger, metrics)
	if err != nil {
		return err
	}
	if err := playback.Load(ctx); err != nil {
		return err
	}

	logger.Info("playback start",
		zap.String("file", cfg.Playback.Path),
		zap.Float64("speed", cfg.Playback.TimeScale),
		zap.Duration("duration", playback.TotalDuration()),
		zap.Bool("fast", cfg.Fast),
	)

	if cfg.Fast {
		if err := playback.RunToEnd(ctx); err != nil {
			return err
		}
	} else {
		if err := playback.Play(ctx); err != nil {
			return err
		}
		select {
		case <-playback.Done():
		case <-ctx.Done():
			playback.Pause()
			logger.Info("playback interrupted", zap.Float64("progress", playback.Progress()))
			return nil
		}
	}

	logger.Info("playback finished", zap.String("state", playback.State().String()))
	return nil
}
