// Package config defines all configuration structures for dockpipe.  No I/O
// or parsing logic lives in this file, only plain data types and validation.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// RunConfig holds the parameters of one docking run.  It is threaded
// explicitly into every pipeline step.
type RunConfig struct {
	// Receptor is the receptor file name, relative to WorkDir.  It is never
	// docked, moved or treated as a ligand.
	Receptor string `mapstructure:"receptor"`

	// DockingConfig is the docking engine configuration file (vina --config).
	DockingConfig string `mapstructure:"config"`

	// PH is passed to the converter for protonation.  0 disables protonation.
	PH float64 `mapstructure:"ph"`

	// Ligands is the ligand library.  Empty skips the conversion step.
	Ligands string `mapstructure:"ligands"`

	// Complexes is the number of top hits to assemble.  0 skips assembly.
	Complexes int `mapstructure:"complexes"`

	// WorkDir is the working directory all relative names resolve against.
	WorkDir string `mapstructure:"workdir"`
}

// Validate checks the fields required to start a docking run.
func (r RunConfig) Validate() error {
	if strings.TrimSpace(r.Receptor) == "" {
		return fmt.Errorf("config: run.receptor is required")
	}
	if strings.TrimSpace(r.DockingConfig) == "" {
		return fmt.Errorf("config: run.config is required")
	}
	if r.Complexes < 0 {
		return fmt.Errorf("config: run.complexes must be >= 0, got %d", r.Complexes)
	}
	if r.PH < 0 || r.PH > 14 {
		return fmt.Errorf("config: run.ph %.2f is out of range [0, 14]", r.PH)
	}
	return nil
}

// ReceptorName returns the base name of the receptor file.
func (r RunConfig) ReceptorName() string {
	return filepath.Base(r.Receptor)
}

// ToolsConfig names the external programs and how they are invoked.
type ToolsConfig struct {
	Obabel string `mapstructure:"obabel"`
	Vina   string `mapstructure:"vina"`
	Pymol  string `mapstructure:"pymol"`

	// Merger selects the complex builder: "pymol" or "builtin".
	Merger string `mapstructure:"merger"`

	// Timeout bounds each external command.  0 means no timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LayoutConfig names the directories and files the pipeline produces.
type LayoutConfig struct {
	Logs      string `mapstructure:"logs"`
	Outputs   string `mapstructure:"outputs"`
	Results   string `mapstructure:"results"`
	Backup    string `mapstructure:"backup"`
	Inputs    string `mapstructure:"inputs"`
	Complexes string `mapstructure:"complexes"`

	ResultsFile string `mapstructure:"results_file"`
	SortedFile  string `mapstructure:"sorted_file"`
	RunLog      string `mapstructure:"run_log"`
}

// ScoreConfig controls score extraction from docking output files.
type ScoreConfig struct {
	// Mode is "label" (line index 1, then the first labelled line) or
	// "positional" (line index 1 only).
	Mode   string   `mapstructure:"mode"`
	Labels []string `mapstructure:"labels"`
}

// AnalysisConfig controls the statistics summary and histogram.
type AnalysisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Bins          int    `mapstructure:"bins"`
	HistogramFile string `mapstructure:"histogram_file"`
}

// ArchiveConfig controls the compressed run archive.
type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Level is one of "fastest", "default", "better", "best".
	Level string `mapstructure:"level"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	// Output is "stderr", "stdout" or a file path.
	Output string `mapstructure:"output"`
	// RunLog mirrors entries into layout.run_log inside the working directory.
	RunLog bool `mapstructure:"run_log"`
}

// MetricsConfig holds Prometheus parameters.
type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Namespace      string `mapstructure:"namespace"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// RedisConfig holds Redis connection parameters for the leaderboard sink.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// DatabaseConfig holds PostgreSQL connection parameters for run history.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationPath   string        `mapstructure:"migration_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// KafkaConfig holds Kafka parameters for run events and the request worker.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Acks         string        `mapstructure:"acks"` // "none" | "one" | "all"
	Compression  string        `mapstructure:"compression"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// Worker side.
	GroupID         string        `mapstructure:"group_id"`
	RequestTopic    string        `mapstructure:"request_topic"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	// MaxRetries re-delivers a failed request before dead-lettering it.  A run
	// that started is never retried.  0 dead-letters on the first failure.
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
}

// MinIOConfig holds S3-compatible object-storage parameters.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
	// RetentionDays expires archives under Prefix.  0 keeps them forever.
	RetentionDays int `mapstructure:"retention_days"`
}

// ServerConfig holds HTTP results-browser tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WatchConfig holds inbox-watcher parameters.
type WatchConfig struct {
	Inbox    string        `mapstructure:"inbox"`
	Pattern  string        `mapstructure:"pattern"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Config is the root configuration structure.
type Config struct {
	Run      RunConfig      `mapstructure:"run"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Layout   LayoutConfig   `mapstructure:"layout"`
	Score    ScoreConfig    `mapstructure:"score"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Server   ServerConfig   `mapstructure:"server"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

// Validate performs semantic validation of the fully-populated Config.  Run
// parameters are checked separately by RunConfig.Validate because commands
// such as "rank" and "serve" do not need them.
func (c *Config) Validate() error {
	switch c.Tools.Merger {
	case MergerPymol, MergerBuiltin:
	default:
		return fmt.Errorf("config: tools.merger %q is invalid; expected pymol|builtin", c.Tools.Merger)
	}
	if c.Tools.Timeout < 0 {
		return fmt.Errorf("config: tools.timeout must be >= 0, got %s", c.Tools.Timeout)
	}

	dirs := map[string]string{
		"layout.logs":      c.Layout.Logs,
		"layout.outputs":   c.Layout.Outputs,
		"layout.results":   c.Layout.Results,
		"layout.backup":    c.Layout.Backup,
		"layout.inputs":    c.Layout.Inputs,
		"layout.complexes": c.Layout.Complexes,
	}
	for key, dir := range dirs {
		if dir == "" || strings.ContainsAny(dir, `/\`) {
			return fmt.Errorf("config: %s %q must be a plain directory name", key, dir)
		}
	}

	switch c.Score.Mode {
	case ScoreModeLabel, ScoreModePositional:
	default:
		return fmt.Errorf("config: score.mode %q is invalid; expected label|positional", c.Score.Mode)
	}

	if c.Analysis.Bins < 1 {
		return fmt.Errorf("config: analysis.bins must be >= 1, got %d", c.Analysis.Bins)
	}

	switch c.Archive.Level {
	case "fastest", "default", "better", "best":
	default:
		return fmt.Errorf("config: archive.level %q is invalid; expected fastest|default|better|best", c.Archive.Level)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required")
		}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required")
		}
		if c.Kafka.MaxRetries < 0 {
			return fmt.Errorf("config: kafka.max_retries must be >= 0, got %d", c.Kafka.MaxRetries)
		}
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	return nil
}
