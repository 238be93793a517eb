package config

import "time"

const (
	DefaultPH        = 7.4
	DefaultObabel    = "obabel"
	DefaultVina      = "vina"
	DefaultPymol     = "pymol"
	DefaultLogsDir   = "logs"
	DefaultOutputs   = "outputs"
	DefaultResults   = "results"
	DefaultBackup    = "backup"
	DefaultInputs    = "inputs"
	DefaultComplexes = "complexes"

	DefaultResultsFile = "results.txt"
	DefaultSortedFile  = "results_sorted.txt"
	DefaultRunLog      = "docking_log.txt"

	DefaultHistogramBins = 20
	DefaultHistogramFile = "score_histogram.png"
	DefaultArchiveLevel  = "default"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
	DefaultLogOutput = "stderr"

	DefaultMetricsNamespace = "dockpipe"
	DefaultMetricsJob       = "dockpipe"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "dockpipe:"
	DefaultRedisTTL       = 7 * 24 * time.Hour

	DefaultDBHost        = "localhost"
	DefaultDBPort        = 5432
	DefaultDBName        = "dockpipe"
	DefaultDBMaxConns    = 4
	DefaultMigrationPath = "migrations"

	DefaultKafkaBroker = "localhost:9092"
	DefaultKafkaTopic  = "dockpipe.runs"
	DefaultKafkaGroup  = "dockpipe-workers"
	DefaultKafkaAcks   = "all"

	DefaultKafkaRequestTopic    = "dockpipe.requests"
	DefaultKafkaDeadLetterTopic = "dockpipe.dead_letter"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "dockpipe-archives"
	DefaultMinIOPrefix   = "runs/"

	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultWatchPattern  = "*.sdf"
	DefaultWatchDebounce = 2 * time.Second
)

// Merger names.
const (
	MergerPymol   = "pymol"
	MergerBuiltin = "builtin"
)

// Score extraction modes.
const (
	ScoreModeLabel      = "label"
	ScoreModePositional = "positional"
)

// DefaultScoreLabels are the line markers searched in label mode.
var DefaultScoreLabels = []string{"REMARK VINA RESULT:", "Estimated Free Energy of Binding"}

// ApplyDefaults fills every zero-value field in cfg with its default.  Fields
// already set by the caller are left unchanged.  run.ph is not touched here
// because 0 is a meaningful value; its default is registered on the viper
// instance instead.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Run.WorkDir == "" {
		cfg.Run.WorkDir = "."
	}

	if cfg.Tools.Obabel == "" {
		cfg.Tools.Obabel = DefaultObabel
	}
	if cfg.Tools.Vina == "" {
		cfg.Tools.Vina = DefaultVina
	}
	if cfg.Tools.Pymol == "" {
		cfg.Tools.Pymol = DefaultPymol
	}
	if cfg.Tools.Merger == "" {
		cfg.Tools.Merger = MergerPymol
	}

	setString(&cfg.Layout.Logs, DefaultLogsDir)
	setString(&cfg.Layout.Outputs, DefaultOutputs)
	setString(&cfg.Layout.Results, DefaultResults)
	setString(&cfg.Layout.Backup, DefaultBackup)
	setString(&cfg.Layout.Inputs, DefaultInputs)
	setString(&cfg.Layout.Complexes, DefaultComplexes)
	setString(&cfg.Layout.ResultsFile, DefaultResultsFile)
	setString(&cfg.Layout.SortedFile, DefaultSortedFile)
	setString(&cfg.Layout.RunLog, DefaultRunLog)

	if cfg.Score.Mode == "" {
		cfg.Score.Mode = ScoreModeLabel
	}
	if len(cfg.Score.Labels) == 0 {
		cfg.Score.Labels = append([]string(nil), DefaultScoreLabels...)
	}

	if cfg.Analysis.Bins == 0 {
		cfg.Analysis.Bins = DefaultHistogramBins
	}
	setString(&cfg.Analysis.HistogramFile, DefaultHistogramFile)
	setString(&cfg.Archive.Level, DefaultArchiveLevel)

	setString(&cfg.Log.Level, DefaultLogLevel)
	setString(&cfg.Log.Format, DefaultLogFormat)
	setString(&cfg.Log.Output, DefaultLogOutput)

	setString(&cfg.Metrics.Namespace, DefaultMetricsNamespace)
	setString(&cfg.Metrics.JobName, DefaultMetricsJob)

	setString(&cfg.Redis.Addr, DefaultRedisAddr)
	setString(&cfg.Redis.KeyPrefix, DefaultRedisKeyPrefix)
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}

	setString(&cfg.Database.Host, DefaultDBHost)
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	setString(&cfg.Database.DBName, DefaultDBName)
	setString(&cfg.Database.SSLMode, "disable")
	setString(&cfg.Database.MigrationPath, DefaultMigrationPath)
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	setString(&cfg.Kafka.Topic, DefaultKafkaTopic)
	setString(&cfg.Kafka.Acks, DefaultKafkaAcks)
	setString(&cfg.Kafka.GroupID, DefaultKafkaGroup)
	setString(&cfg.Kafka.RequestTopic, DefaultKafkaRequestTopic)
	setString(&cfg.Kafka.DeadLetterTopic, DefaultKafkaDeadLetterTopic)
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = time.Second
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	setString(&cfg.MinIO.Endpoint, DefaultMinIOEndpoint)
	setString(&cfg.MinIO.Bucket, DefaultMinIOBucket)
	setString(&cfg.MinIO.Prefix, DefaultMinIOPrefix)

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	setString(&cfg.Server.Mode, DefaultServerMode)
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	setString(&cfg.Watch.Pattern, DefaultWatchPattern)
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}
