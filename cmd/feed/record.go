package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"midgardFeed/internal/config"
	"midgardFeed/internal/midgard"
	"midgardFeed/internal/recording"
)

func runRecord(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRecord(cfgFile, cmd.Flags())
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

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	client, err := midgard.NewClient(cfg.Source.ClientConfig(nil), logger)
	if err != nil {
		return err
	}

	recorder, err := recording.NewRecorder(cfg.Recorder, client, client.Parser(), logger)
	if err != nil {
		return err
	}

	logger.Info("record start",
		zap.String("network", client.Network().ID),
		zap.String("schema", string(client.Schema())),
		zap.Duration("period", cfg.Recorder.Period),
		zap.Duration("duration", cfg.Duration),
		zap.String("out", cfg.Out),
	)

	if err := recorder.Run(ctx); err != nil {
		return err
	}

	if err := recorder.Save(cfg.Out); err != nil {
		return err
	}
	logger.Info("recording saved", zap.String("out", cfg.Out), zap.Int("envelopes", recorder.Len()))
	return nil
}
