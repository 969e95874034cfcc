// Package config loads the node's configuration via viper, from a
// positional config file path (YAML or TOML, sniffed by extension),
// environment variable overrides under the SKYNET_ prefix, and the most
// common keys also bindable from the command line via pflag.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for one node. LoggerArg and
// Profile are additionally mirrored into atomics kept live by
// viper.WatchConfig, so a running node can observe a file edit without a
// restart; every other field is read once at Load and requires one.
type Config struct {
	Thread     int    `mapstructure:"thread"`
	CPath      string `mapstructure:"cpath"`
	Harbor     uint8  `mapstructure:"harbor"`
	Bootstrap  string `mapstructure:"bootstrap"`
	Daemon     string `mapstructure:"daemon"`
	Logger     string `mapstructure:"logger"`
	LogService string `mapstructure:"logservice"`
	Profile    bool   `mapstructure:"profile"`

	AdminGRPCAddr string `mapstructure:"admin_grpc_addr"`
	AdminHTTPAddr string `mapstructure:"admin_http_addr"`
	HarborAMQPURL string `mapstructure:"harbor_amqp_url"`

	loggerArg atomic.Value // string
	profile   atomic.Bool
}

// LoggerArg returns the current value of the logger argument, reflecting
// any hot reload since Load.
func (c *Config) LoggerArg() string {
	if v, ok := c.loggerArg.Load().(string); ok {
		return v
	}
	return c.Logger
}

// ProfileEnabled returns the current value of the profile flag,
// reflecting any hot reload since Load.
func (c *Config) ProfileEnabled() bool { return c.profile.Load() }

func setDefaults(v *viper.Viper) {
	v.SetDefault("thread", 8)
	v.SetDefault("cpath", "./modules/?.so")
	v.SetDefault("harbor", 1)
	v.SetDefault("bootstrap", "")
	v.SetDefault("logservice", "logger")
	v.SetDefault("profile", false)
}

// bindFlags binds the handful of keys an operator most commonly
// overrides from the command line.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	pairs := map[string]string{
		"thread":     "thread",
		"harbor":     "harbor",
		"bootstrap":  "bootstrap",
		"profile":    "profile",
		"logger":     "logger",
		"logservice": "logservice",
	}
	for key, flag := range pairs {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("config: bind flag %q: %w", flag, err)
			}
		}
	}
	return nil
}

// RegisterFlags adds the overridable flags to flags, for a CLI command
// to attach before parsing.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.Int("thread", 0, "worker count (overrides config file)")
	flags.Uint8("harbor", 0, "cluster node id (overrides config file)")
	flags.String("bootstrap", "", "bootstrap service name (overrides config file)")
	flags.Bool("profile", false, "enable per-service CPU accounting")
	flags.String("logger", "", "argument passed to the logger service")
	flags.String("logservice", "", "module name of the logger service")
}

// Load reads path (YAML or TOML, by extension) into a Config, applying
// SKYNET_-prefixed environment overrides and any bound CLI flags, and
// enables hot-reload via viper.WatchConfig so the logger argument and
// the profile flag can change without a restart.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("skynet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Thread <= 0 {
		return nil, fmt.Errorf("config: thread must be positive, got %d", cfg.Thread)
	}
	cfg.loggerArg.Store(cfg.Logger)
	cfg.profile.Store(cfg.Profile)

	if path != "" {
		v.OnConfigChange(func(in fsnotify.Event) {
			cfg.loggerArg.Store(v.GetString("logger"))
			cfg.profile.Store(v.GetBool("profile"))
			slog.Info("config: reloaded", "file", in.Name, "op", in.Op.String())
		})
		v.WatchConfig()
	}

	return &cfg, nil
}
