package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"midgardFeed/internal/midgard"
	"midgardFeed/internal/observability"
)

// EnvPrefix namespaces environment overrides, e.g. MIDGARD_FEED_NETWORK.
const EnvPrefix = "MIDGARD_FEED"

// Sinks selects where domain events go besides the log.
type Sinks struct {
	Journal string
	PGDSN   string
	Listen  string
}

// Logging is shared by every command.
type Logging struct {
	Level string
	File  string
}

// Source describes the Midgard deployment to talk to.
type Source struct {
	Network   string
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
}

// ClientConfig builds the midgard client settings for s.
func (s Source) ClientConfig(metrics *observability.Metrics) midgard.ClientConfig {
	return midgard.ClientConfig{
		Network:   s.Network,
		BaseURL:   s.BaseURL,
		Timeout:   s.Timeout,
		RateLimit: s.RateLimit,
		Metrics:   metrics,
	}
}

// newViper merges defaults, config file, environment variables, and flags.
// Flags win over env, env over file, file over defaults.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

func loadLogging(v *viper.Viper) Logging {
	return Logging{
		Level: v.GetString("log-level"),
		File:  strings.TrimSpace(v.GetString("log-file")),
	}
}

func loadSinks(v *viper.Viper) Sinks {
	return Sinks{
		Journal: strings.TrimSpace(v.GetString("journal")),
		PGDSN:   strings.TrimSpace(v.GetString("pg-dsn")),
		Listen:  strings.TrimSpace(v.GetString("listen")),
	}
}

func loadSource(v *viper.Viper) (Source, error) {
	src := Source{
		Network:   strings.ToLower(strings.TrimSpace(v.GetString("network"))),
		BaseURL:   strings.TrimSpace(v.GetString("midgard-url")),
		Timeout:   v.GetDuration("http-timeout"),
		RateLimit: v.GetFloat64("rate-limit"),
	}
	if _, err := midgard.LookupNetwork(src.Network); err != nil {
		return Source{}, err
	}
	if src.RateLimit < 0 {
		return Source{}, &midgard.ConfigError{Field: "rate-limit", Err: fmt.Errorf("must not be negative, got %v", src.RateLimit)}
	}
	return src, nil
}

var sourceDefaults = map[string]any{
	"network":      midgard.Mainnet,
	"http-timeout": 10 * time.Second,
	"rate-limit":   0.0,
}

func merge(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
