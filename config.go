package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blocknetprivacy/blocksim/protocol/params"
)

const envPrefix = "BLOCKSIM"

// Config holds every user-tunable setting. Values come from flags, then
// BLOCKSIM_* environment variables, then an optional config file.
type Config struct {
	DataDir       string  `mapstructure:"data_dir"`
	Persist       bool    `mapstructure:"persist"`
	Difficulty    int     `mapstructure:"difficulty"`
	APIAddr       string  `mapstructure:"api_addr"`
	ExplorerAddr  string  `mapstructure:"explorer_addr"`
	APIRate       float64 `mapstructure:"api_rate"`
	APIBurst      int     `mapstructure:"api_burst"`
	AttackerPower int     `mapstructure:"attacker_power"`
	LogLevel      string  `mapstructure:"log_level"`
	LogFormat     string  `mapstructure:"log_format"`
	NoColor       bool    `mapstructure:"no_color"`
	LockTrace     bool    `mapstructure:"lock_trace"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:       DefaultDataDir,
		Persist:       true,
		Difficulty:    params.DefaultDifficulty,
		APIAddr:       DefaultAPIAddr,
		APIRate:       5,
		APIBurst:      10,
		AttackerPower: params.DefaultAttackerPower,
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// bindConfigFlags registers persistent flags and binds them to v.
func bindConfigFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	d := DefaultConfig()
	flags.String("data-dir", d.DataDir, "Data directory")
	flags.Bool("persist", d.Persist, "Save state to the data directory after every change")
	flags.Int("difficulty", d.Difficulty, "Leading zero hex digits required for new blocks")
	flags.String("api-addr", d.APIAddr, "API listen address")
	flags.String("explorer-addr", d.ExplorerAddr, "HTTP address for the block explorer (empty = disabled)")
	flags.Float64("api-rate", d.APIRate, "Mutating API requests allowed per second")
	flags.Int("api-burst", d.APIBurst, "Burst size for mutating API requests")
	flags.Int("attacker-power", d.AttackerPower, "Attacker share of hash power (1-99)")
	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", d.LogFormat, "Log format (console, json)")
	flags.Bool("no-color", d.NoColor, "Disable colored output")
	flags.Bool("lock-trace", d.LockTrace, "Log session lock contention")

	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// newViper prepares a viper instance with defaults and environment binding.
func newViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("persist", d.Persist)
	v.SetDefault("difficulty", d.Difficulty)
	v.SetDefault("api_addr", d.APIAddr)
	v.SetDefault("explorer_addr", d.ExplorerAddr)
	v.SetDefault("api_rate", d.APIRate)
	v.SetDefault("api_burst", d.APIBurst)
	v.SetDefault("attacker_power", d.AttackerPower)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("no_color", d.NoColor)
	v.SetDefault("lock_trace", d.LockTrace)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// readConfigFile loads path if set, otherwise looks for blocksim.{yaml,toml,json}
// in the working directory. A missing default file is not an error.
func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// LoadConfig decodes and validates the configuration held by v.
func LoadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects out-of-range settings.
func (c Config) Validate() error {
	if c.Difficulty < 0 || c.Difficulty > params.MaxDifficulty {
		return fmt.Errorf("difficulty must be between 0 and %d, got %d", params.MaxDifficulty, c.Difficulty)
	}
	if c.AttackerPower < 1 || c.AttackerPower > 99 {
		return fmt.Errorf("attacker_power must be between 1 and 99, got %d", c.AttackerPower)
	}
	if c.APIRate <= 0 || c.APIBurst <= 0 {
		return fmt.Errorf("api_rate and api_burst must be positive")
	}
	if c.Persist && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required when persistence is enabled")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}
