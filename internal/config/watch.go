package config

import (
	"fmt"

	"github.com/spf13/pflag"

	"midgardFeed/internal/midgard"
	"midgardFeed/internal/provider"
)

// WatchConfig holds configuration for the watch command.
type WatchConfig struct {
	Source   Source
	Realtime provider.RealtimeConfig
	Sinks    Sinks
	Logging  Logging
}

// LoadWatch merges config file, environment variables, and flags into WatchConfig.
func LoadWatch(cfgFile string, flags *pflag.FlagSet) (WatchConfig, error) {
	def := provider.DefaultRealtimeConfig()
	v, err := newViper(cfgFile, flags, merge(sourceDefaults, map[string]any{
		"tick-interval":          def.TickInterval,
		"max-pages":              def.MaxPages,
		"page-size":              def.PageSize,
		"fetch-attempts":         def.FetchAttempts,
		"retry-delay":            def.RetryDelay,
		"suppress-errors":        def.SuppressErrors,
		"ignore-old":             def.IgnoreOld,
		"ignore-first-successes": def.IgnoreFirstRunSuccesses,
		"max-tx-age":             def.MaxTxAge,
		"max-tx-cache":           def.MaxTxCache,
	}))
	if err != nil {
		return WatchConfig{}, err
	}

	src, err := loadSource(v)
	if err != nil {
		return WatchConfig{}, err
	}

	cfg := WatchConfig{
		Source: src,
		Realtime: provider.RealtimeConfig{
			TickInterval:            v.GetDuration("tick-interval"),
			MaxPages:                v.GetInt("max-pages"),
			PageSize:                v.GetInt("page-size"),
			FetchAttempts:           v.GetInt("fetch-attempts"),
			RetryDelay:              v.GetDuration("retry-delay"),
			SuppressErrors:          v.GetBool("suppress-errors"),
			IgnoreOld:               v.GetBool("ignore-old"),
			IgnoreFirstRunSuccesses: v.GetBool("ignore-first-successes"),
			MaxTxAge:                v.GetDuration("max-tx-age"),
			MaxTxCache:              v.GetInt("max-tx-cache"),
		},
		Sinks:   loadSinks(v),
		Logging: loadLogging(v),
	}

	if cfg.Realtime.TickInterval <= 0 {
		return WatchConfig{}, fmt.Errorf("tick-interval must be positive, got %s", cfg.Realtime.TickInterval)
	}
	if cfg.Realtime.MaxPages <= 0 || cfg.Realtime.PageSize <= 0 {
		return WatchConfig{}, fmt.Errorf("max-pages and page-size must be positive")
	}
	if cfg.Realtime.PageSize > midgard.MaxActionsPerCall {
		cfg.Realtime.PageSize = midgard.MaxActionsPerCall
	}
	if cfg.Realtime.FetchAttempts <= 0 {
		return WatchConfig{}, fmt.Errorf("fetch-attempts must be positive, got %d", cfg.Realtime.FetchAttempts)
	}

	return cfg, nil
}
