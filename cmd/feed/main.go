package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"midgardFeed/internal/midgard"
)

func main() {
	root := &cobra.Command{
		Use:          "midgard-feed",
		Short:        "THORChain Midgard pool and transaction event feed",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-file", "", "also write JSON logs to this rotating file")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll Midgard and stream pool and transaction events",
		RunE:  runWatch,
	}

	addSourceFlags(watchCmd)
	watchCmd.Flags().Duration("tick-interval", 5*time.Second, "time between polls")
	watchCmd.Flags().Int("max-pages", 2, "action pages fetched per tick")
	watchCmd.Flags().Int("page-size", midgard.MaxActionsPerCall, "actions per page (max 50)")
	watchCmd.Flags().Int("fetch-attempts", 3, "attempts per tick before it is skipped")
	watchCmd.Flags().Duration("retry-delay", time.Second, "delay between attempts")
	watchCmd.Flags().Bool("suppress-errors", true, "skip failed ticks instead of stopping")
	watchCmd.Flags().Bool("ignore-old", true, "do not announce transactions older than max-tx-age")
	watchCmd.Flags().Bool("ignore-first-successes", false, "do not announce already settled transactions on the first poll")
	watchCmd.Flags().Duration("max-tx-age", 12*time.Hour, "age after which pending transactions are evicted")
	watchCmd.Flags().Int("max-tx-cache", 50, "transactions tracked at once")
	addSinkFlags(watchCmd)

	root.AddCommand(watchCmd)

	playbackCmd := &cobra.Command{
		Use:   "playback",
		Short: "Replay a recorded session as events",
		RunE:  runPlayback,
	}

	playbackCmd.Flags().String("file", "", "recording path or http(s) URL")
	playbackCmd.Flags().Float64("speed", 1, "time scale, 2 plays twice as fast")
	playbackCmd.Flags().Bool("wait-first-event", false, "honor the offset of the first envelope")
	playbackCmd.Flags().Bool("fast", false, "replay without waiting between envelopes")
	playbackCmd.Flags().Bool("ignore-old", true, "do not announce transactions older than max-tx-age")
	playbackCmd.Flags().Duration("max-tx-age", 12*time.Hour, "age after which pending transactions are evicted")
	playbackCmd.Flags().Int("max-tx-cache", 50, "transactions kept in the replayed set")
	addSinkFlags(playbackCmd)

	root.AddCommand(playbackCmd)

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record Midgard snapshot differences to a playback file",
		RunE:  runRecord,
	}

	addSourceFlags(recordCmd)
	recordCmd.Flags().Duration("period", time.Second, "time between polls")
	recordCmd.Flags().Int("page-size", midgard.MaxActionsPerCall, "actions fetched per poll (max 50)")
	recordCmd.Flags().String("out", "./data/record.json", "output recording path")
	recordCmd.Flags().Duration("duration", 0, "stop after this long, 0 records until interrupted")

	root.AddCommand(recordCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("network", midgard.Mainnet, "network ("+strings.Join(midgard.NetworkIDs(), ", ")+")")
	cmd.Flags().String("midgard-url", "", "override the network's Midgard base URL")
	cmd.Flags().Duration("http-timeout", 10*time.Second, "HTTP request timeout")
	cmd.Flags().Float64("rate-limit", 0, "max Midgard requests per second, 0 is unlimited")
}

func addSinkFlags(cmd *cobra.Command) {
	cmd.Flags().String("journal", "", "append events to this JSONL file")
	cmd.Flags().String("pg-dsn", "", "write events to Postgres")
	cmd.Flags().String("listen", "", "serve /metrics and /events on this address")
}

func newLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if file == "" {
		return cfg.Build()
	}

	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotating, cfg.Level)

	return cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
}
