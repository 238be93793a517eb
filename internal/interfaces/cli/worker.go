package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/turtacn/dockpipe/internal/config"
	"github.com/turtacn/dockpipe/internal/domain/docking"
	kafkaclient "github.com/turtacn/dockpipe/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// NewWorkerCmd creates the worker command.
func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the pipeline for run requests consumed from Kafka",
		Long: "Consume run.requested events from kafka.request_topic and run each request\n" +
			"to completion before taking the next.  Requests that still fail after\n" +
			"kafka.max_retries are sent to kafka.dead_letter_topic.",
		RunE: runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	log := cliCtx.Logger.Named("worker")
	ctx := cmd.Context()

	if !cfg.Kafka.Enabled {
		return errors.InvalidParam("worker requires kafka.enabled")
	}

	infra := newInfrastructure(ctx, cfg, cliCtx.Logger)
	defer infra.Close()
	if infra.producer == nil {
		return errors.New(errors.ErrCodeMessagingError, "kafka producer unavailable")
	}

	handler := requestHandler(cfg.Run, func(ctx context.Context, rc config.RunConfig) error {
		p, err := infra.pipelineFor(rc)
		if err != nil {
			return err
		}
		release, err := infra.lockWorkDir(ctx, p.Workspace().Root())
		if err != nil {
			return err
		}
		defer release()
		summary, err := p.Run(ctx, rc)
		infra.pushMetrics(ctx)
		if summary != nil {
			log.Info("request finished",
				logging.String("run_id", summary.ID),
				logging.String("status", string(summary.Status)))
		}
		return requestOutcome(summary, err)
	})

	kc := cfg.Kafka
	consumer, err := kafkaclient.NewConsumer(kafkaclient.ConsumerConfig{
		Brokers: kc.Brokers,
		GroupID: kc.GroupID,
		Topic:   kc.RequestTopic,
		RetryConfig: kafkaclient.RetryConfig{
			MaxRetries:      kc.MaxRetries,
			RetryBackoff:    kc.RetryBackoff,
			DeadLetterTopic: kc.DeadLetterTopic,
		},
	}, handler, infra.producer, log)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	srv := newHTTPServer(cfg, infra, nil, log)
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error("health server stopped", logging.Err(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down worker",
		logging.Int64("processed", consumer.Processed()),
		logging.Int64("dead_lettered", consumer.DeadLettered()))
	return consumer.Close()
}

// requestHandler decodes run.requested events into run parameters on top of
// base and hands them to run.  Malformed requests fail permanently.
func requestHandler(base config.RunConfig, run func(context.Context, config.RunConfig) error) kafkaclient.Handler {
	return func(ctx context.Context, msg *kafkaclient.Message) error {
		env, err := kafkaclient.MessageToEventEnvelope(msg)
		if err != nil {
			return kafkaclient.Permanent(err)
		}
		if env.EventType != kafkaclient.EventRunRequested {
			return kafkaclient.Permanent(errors.Newf(errors.ErrCodeValidation, "unexpected event type %q", env.EventType))
		}
		var req kafkaclient.RunRequestedPayload
		if err := env.DecodePayload(&req); err != nil {
			return kafkaclient.Permanent(err)
		}
		rc := requestRunConfig(base, req)
		if err := rc.Validate(); err != nil {
			return kafkaclient.Permanent(errors.Wrap(err, errors.ErrCodeValidation, "invalid run request"))
		}
		return run(ctx, rc)
	}
}

// requestOutcome decides whether a failed request may be retried.  Once a run
// has started its ligands are docked, so its failure is permanent.
func requestOutcome(summary *docking.RunSummary, err error) error {
	if summary == nil {
		return err
	}
	return kafkaclient.Permanent(err)
}

func requestRunConfig(base config.RunConfig, req kafkaclient.RunRequestedPayload) config.RunConfig {
	rc := base
	rc.WorkDir = req.WorkDir
	rc.Receptor = req.Receptor
	rc.DockingConfig = req.DockingConfig
	rc.Ligands = req.Ligands
	rc.Complexes = req.Complexes
	if req.PH != nil {
		rc.PH = *req.PH
	}
	if rc.WorkDir == "" {
		rc.WorkDir = base.WorkDir
	}
	return rc
}

// NewSubmitCmd creates the submit command, the producer side of worker.
func NewSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a run request for the workers",
		RunE:  runSubmit,
	}
	addRunFlags(cmd, true)
	return cmd
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	rc := cfg.Run
	if err := rc.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid run parameters")
	}
	if !cfg.Kafka.Enabled {
		return errors.InvalidParam("submit requires kafka.enabled")
	}

	producer, err := kafkaclient.NewProducer(kafkaclient.ProducerConfig{
		Brokers:          cfg.Kafka.Brokers,
		Acks:             cfg.Kafka.Acks,
		CompressionCodec: cfg.Kafka.Compression,
		WriteTimeout:     cfg.Kafka.WriteTimeout,
	}, cliCtx.Logger.Named("kafka"))
	if err != nil {
		return err
	}
	defer producer.Close()

	env, err := submitEnvelope(rc)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(cfg.Kafka.RequestTopic, rc.Receptor)
	if err != nil {
		return err
	}
	if err := producer.Publish(cmd.Context(), msg); err != nil {
		return err
	}
	PrintSuccess(cmd, "run request "+env.EventID+" queued on "+cfg.Kafka.RequestTopic)
	return nil
}

// submitEnvelope builds the run.requested event for rc.  The working
// directory is made absolute since workers resolve it on their own host.
func submitEnvelope(rc config.RunConfig) (*kafkaclient.EventEnvelope, error) {
	workDir, err := filepath.Abs(rc.WorkDir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "resolve working directory")
	}
	ph := rc.PH
	return kafkaclient.NewEventEnvelope(kafkaclient.EventRunRequested, kafkaclient.RunRequestedPayload{
		WorkDir:       workDir,
		Receptor:      rc.Receptor,
		DockingConfig: rc.DockingConfig,
		Ligands:       rc.Ligands,
		PH:            &ph,
		Complexes:     rc.Complexes,
	})
}
