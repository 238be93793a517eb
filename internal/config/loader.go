// Package config provides configuration loading, defaults, and validation for
// dockpipe.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "DOCKPIPE"

// Search locations used when no settings file is given explicitly.
const (
	settingsName     = "dockpipe"
	settingsHomePath = "$HOME/.dockpipe"
)

// Option customises a Load call.
type Option func(*viper.Viper) error

// WithFlags binds command-line flags to configuration keys.  A flag set on
// the command line wins over the environment and the settings file; an unset
// flag contributes only its default.  bindings maps config key to flag name,
// e.g. {"run.receptor": "receptor"}.
func WithFlags(fs *pflag.FlagSet, bindings map[string]string) Option {
	return func(v *viper.Viper) error {
		for key, name := range bindings {
			f := fs.Lookup(name)
			if f == nil {
				return fmt.Errorf("config: flag %q for key %q is not defined", name, key)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("config: bind flag %q: %w", name, err)
			}
		}
		return nil
	}
}

// newViper builds a Viper instance with YAML file type, the DOCKPIPE_ env
// prefix, automatic env binding and a "." -> "_" key replacer so that
// "run.receptor" resolves to DOCKPIPE_RUN_RECEPTOR.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Registered rather than applied in ApplyDefaults so that an explicit
	// pH of 0 survives.
	v.SetDefault("run.ph", DefaultPH)
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// envKeys lists the keys that may be supplied only through the environment.
var envKeys = []string{
	"run.receptor", "run.config", "run.ligands", "run.complexes", "run.workdir",
	"tools.obabel", "tools.vina", "tools.pymol", "tools.merger", "tools.timeout",
	"log.level", "log.format", "log.output", "log.run_log",
	"metrics.enabled", "metrics.pushgateway_url",
	"redis.enabled", "redis.addr", "redis.password",
	"database.enabled", "database.host", "database.port", "database.user", "database.password", "database.db_name",
	"kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.group_id",
	"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket",
	"server.port", "watch.inbox",
}

// Load reads the YAML file at configPath, merges DOCKPIPE_* environment
// variables and any bound flags, applies defaults and validates the result.
//
// When configPath is empty, ./dockpipe.yaml and $HOME/.dockpipe/dockpipe.yaml
// are tried in order; finding neither is not an error.
func Load(configPath string, opts ...Option) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
		}
	} else {
		v.SetConfigName(settingsName)
		v.AddConfigPath(".")
		v.AddConfigPath(settingsHomePath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: failed to read config file: %w", err)
			}
		}
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from DOCKPIPE_* environment variables.
//
//	DOCKPIPE_<SECTION>_<FIELD>   e.g.  DOCKPIPE_RUN_RECEPTOR, DOCKPIPE_REDIS_ADDR
func LoadFromEnv(opts ...Option) (*Config, error) {
	v := newViper()
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return unmarshalAndFinalize(v)
}

// Default returns a Config populated only with defaults.
func Default() *Config {
	cfg := &Config{Run: RunConfig{PH: DefaultPH}}
	ApplyDefaults(cfg)
	return cfg
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the newly parsed Config
// whenever the file changes.  Invalid intermediate states are skipped.
// Watch is non-blocking; viper owns the watcher goroutine.
func Watch(configPath string, onChange func(*Config)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad is Load that panics on error.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
