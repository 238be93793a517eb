package cli

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/afero"

	"github.com/turtacn/dockpipe/internal/application/pipeline"
	"github.com/turtacn/dockpipe/internal/config"
	pgconn "github.com/turtacn/dockpipe/internal/infrastructure/database/postgres"
	redisclient "github.com/turtacn/dockpipe/internal/infrastructure/database/redis"
	"github.com/turtacn/dockpipe/internal/infrastructure/external"
	kafkaclient "github.com/turtacn/dockpipe/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/prometheus"
	minioclient "github.com/turtacn/dockpipe/internal/infrastructure/storage/minio"
	"github.com/turtacn/dockpipe/internal/infrastructure/storage/workspace"
	"github.com/turtacn/dockpipe/internal/interfaces/http/handlers"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// infrastructure holds the clients shared by every run a command starts.
// A backend that is disabled or unreachable is left nil; runs proceed
// without it.
type infrastructure struct {
	cfg *config.Config
	log logging.Logger

	collector prometheus.MetricsCollector
	metrics   *prometheus.AppMetrics

	redis       *redisclient.Client
	leaderboard *redisclient.Leaderboard
	pool        *pgxpool.Pool
	runs        *pgconn.RunRepository
	producer    *kafkaclient.Producer
	minio       *minioclient.MinIOClient
	archives    *minioclient.ArchiveStore

	runner external.Runner
}

func newInfrastructure(ctx context.Context, cfg *config.Config, log logging.Logger) *infrastructure {
	infra := &infrastructure{
		cfg:    cfg,
		log:    log,
		runner: external.NewExecRunner(cfg.Tools.Timeout, log.Named("exec")),
	}
	infra.initMetrics()
	infra.initRedis()
	infra.initPostgres(ctx)
	infra.initKafka()
	infra.initMinIO(ctx)
	return infra
}

func (i *infrastructure) initMetrics() {
	if !i.cfg.Metrics.Enabled {
		return
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            i.cfg.Metrics.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, i.log)
	if err != nil {
		i.log.Warn("metrics disabled", logging.Err(err))
		return
	}
	i.collector = collector
	i.metrics = prometheus.NewAppMetrics(collector)
}

func (i *infrastructure) initRedis() {
	rc := i.cfg.Redis
	if !rc.Enabled {
		return
	}
	client, err := redisclient.NewClient(&redisclient.RedisConfig{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	}, i.log.Named("redis"))
	if err != nil {
		i.log.Warn("redis unavailable, leaderboard disabled", logging.Err(err))
		return
	}
	i.redis = client
	i.leaderboard = redisclient.NewLeaderboard(client, rc.KeyPrefix, rc.TTL, i.log.Named("leaderboard"))
}

func (i *infrastructure) postgresConfig() pgconn.PostgresConfig {
	db := i.cfg.Database
	return pgconn.PostgresConfig{
		Host:            db.Host,
		Port:            db.Port,
		Database:        db.DBName,
		Username:        db.User,
		Password:        db.Password,
		SSLMode:         db.SSLMode,
		MaxConns:        int32(db.MaxConns),
		MinConns:        int32(db.MinConns),
		ConnMaxLifetime: db.ConnMaxLifetime,
	}
}

func (i *infrastructure) initPostgres(ctx context.Context) {
	db := i.cfg.Database
	if !db.Enabled {
		return
	}
	pgCfg := i.postgresConfig()
	if db.AutoMigrate {
		if err := pgconn.NewMigrator(pgCfg, migrationPath(db.MigrationPath), i.log.Named("migrate")).Up(); err != nil {
			i.log.Warn("postgres migration failed, run history disabled", logging.Err(err))
			return
		}
	}
	pool, err := pgconn.NewConnectionPool(ctx, pgCfg, i.log.Named("postgres"))
	if err != nil {
		i.log.Warn("postgres unavailable, run history disabled", logging.Err(err))
		return
	}
	i.pool = pool
	i.runs = pgconn.NewRunRepository(pool, i.log.Named("runs"))
}

// migrationPath returns path when it is an existing directory, otherwise ""
// so the migrations built into the binary are used.
func migrationPath(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return ""
}

func (i *infrastructure) initKafka() {
	kc := i.cfg.Kafka
	if !kc.Enabled {
		return
	}
	producer, err := kafkaclient.NewProducer(kafkaclient.ProducerConfig{
		Brokers:          kc.Brokers,
		Acks:             kc.Acks,
		CompressionCodec: kc.Compression,
		WriteTimeout:     kc.WriteTimeout,
	}, i.log.Named("kafka"))
	if err != nil {
		i.log.Warn("kafka producer disabled", logging.Err(err))
		return
	}
	i.producer = producer
}

func (i *infrastructure) initMinIO(ctx context.Context) {
	mc := i.cfg.MinIO
	if !mc.Enabled {
		return
	}
	client, err := minioclient.NewMinIOClient(ctx, &minioclient.MinIOConfig{
		Endpoint:        mc.Endpoint,
		AccessKeyID:     mc.AccessKey,
		SecretAccessKey: mc.SecretKey,
		UseSSL:          mc.UseSSL,
		Region:          mc.Region,
		Bucket:          mc.Bucket,
		Prefix:          mc.Prefix,
		RetentionDays:   mc.RetentionDays,
	}, i.log.Named("minio"))
	if err != nil {
		i.log.Warn("minio unavailable, archive upload disabled", logging.Err(err))
		return
	}
	i.minio = client
	i.archives = minioclient.NewArchiveStore(client, afero.NewOsFs(), i.log.Named("archives"))
}

// sinks returns the result sinks of every connected backend.
func (i *infrastructure) sinks() []pipeline.Sink {
	var out []pipeline.Sink
	if i.leaderboard != nil {
		out = append(out, i.leaderboard)
	}
	if i.runs != nil {
		out = append(out, i.runs)
	}
	if i.producer != nil {
		out = append(out, kafkaclient.NewEventPublisher(i.producer, i.cfg.Kafka.Topic))
	}
	if i.archives != nil {
		out = append(out, i.archives)
	}
	return out
}

func layoutFromConfig(l config.LayoutConfig) workspace.Layout {
	return workspace.Layout{
		Logs:      l.Logs,
		Outputs:   l.Outputs,
		Results:   l.Results,
		Backup:    l.Backup,
		Inputs:    l.Inputs,
		Complexes: l.Complexes,
	}
}

// pipelineFor builds a pipeline over rc.WorkDir with the configured tools.
func (i *infrastructure) pipelineFor(rc config.RunConfig) (*pipeline.Pipeline, error) {
	ws, err := workspace.New(rc.WorkDir, layoutFromConfig(i.cfg.Layout), i.log.Named("workspace"))
	if err != nil {
		return nil, err
	}
	tools := i.cfg.Tools

	var builder pipeline.ComplexBuilder
	if tools.Merger == config.MergerBuiltin {
		builder = external.NewTextMerger(ws.Fs())
	} else {
		builder = external.NewPyMOL(tools.Pymol, ws.Root(), ws.Fs(), i.runner, i.log.Named("pymol"))
	}

	return pipeline.New(pipeline.Deps{
		Workspace: ws,
		Converter: external.NewOpenBabel(tools.Obabel, ws.Root(), i.runner),
		Engine:    external.NewVina(tools.Vina, rc.DockingConfig, ws.Root(), i.runner),
		Builder:   builder,
		Sinks:     i.sinks(),
		Metrics:   i.metrics,
		Logger:    i.log,
	}, pipeline.OptionsFromConfig(i.cfg))
}

// lock returns a distributed lock on name, or nil without redis.
func (i *infrastructure) lock(name string) redisclient.DistributedLock {
	if i.redis == nil {
		return nil
	}
	return redisclient.NewMutex(i.redis, i.cfg.Redis.KeyPrefix, name, i.log.Named("lock"),
		redisclient.WithLockTTL(time.Minute),
		redisclient.WithWatchdog(true))
}

// lockWorkDir takes the run lock on the working directory root and returns
// its release function.  Without redis nothing is locked.  Release uses its
// own context, so an interrupted run still frees the lock.
func (i *infrastructure) lockWorkDir(ctx context.Context, root string) (func(), error) {
	l := i.lock("run:" + root)
	if l == nil {
		return func() {}, nil
	}
	if err := l.Lock(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConflict, "working directory is locked by another run")
	}
	return func() {
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Unlock(uctx); err != nil {
			i.log.Warn("unlock failed", logging.String("workdir", root), logging.Err(err))
		}
	}, nil
}

// pushMetrics sends the collected metrics to the Pushgateway when one is
// configured.  Failures are logged.
func (i *infrastructure) pushMetrics(ctx context.Context) {
	if i.collector == nil || i.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	if err := i.collector.Push(ctx, i.cfg.Metrics.PushgatewayURL, i.cfg.Metrics.JobName); err != nil {
		i.log.Warn("metrics push failed", logging.Err(err))
	}
}

// healthCheckers adapts every connected backend for the readiness check.
func (i *infrastructure) healthCheckers() []handlers.HealthChecker {
	var out []handlers.HealthChecker
	if i.redis != nil {
		out = append(out, handlers.CheckFunc("redis", i.redis.Ping))
	}
	if i.pool != nil {
		out = append(out, handlers.CheckFunc("postgres", i.pool.Ping))
	}
	if i.minio != nil {
		out = append(out, handlers.CheckFunc("minio", func(ctx context.Context) error {
			st, err := i.minio.HealthCheck(ctx)
			if err != nil {
				return err
			}
			if !st.Healthy {
				return errors.New(errors.ErrCodeStorageError, "bucket "+i.cfg.MinIO.Bucket+" missing")
			}
			return nil
		}))
	}
	return out
}

// Close releases every connected backend.
func (i *infrastructure) Close() {
	if i.producer != nil {
		if err := i.producer.Close(); err != nil {
			i.log.Warn("kafka producer close failed", logging.Err(err))
		}
	}
	if i.minio != nil {
		_ = i.minio.Close()
	}
	if i.pool != nil {
		i.pool.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
}
