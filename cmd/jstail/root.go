package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moroshma/jstail/internal/app"
	"github.com/moroshma/jstail/internal/config"
	"github.com/moroshma/jstail/internal/metrics"
	natsrepo "github.com/moroshma/jstail/internal/repository/nats"
	"github.com/moroshma/jstail/internal/router"
	"github.com/moroshma/jstail/pkg/logger"
)

const version = "0.3.0"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "jstail",
		Short: "Live-tail debugging client for NATS JetStream",
		Long: `jstail opens ephemeral read-only consumers on every JetStream stream
and streams their messages, trace records and failure records to a
browser over WebSocket (serve) or to the terminal (tail).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (optional)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logger.level")

	cmd.AddCommand(newServeCmd(opts), newTailCmd(opts))
	return cmd
}

// runtime is the part shared by serve and tail.
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	events  *router.Router
	worker  *app.Worker
}

// setup loads configuration, applies Vault secrets and wires the worker.
// adjust runs after the file and environment are loaded.
func setup(ctx context.Context, opts *rootOptions, adjust func(*config.Config)) (*runtime, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logger.Level = opts.logLevel
	}
	if adjust != nil {
		adjust(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		OutputPath: cfg.Logger.OutputPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	vaultClient, err := config.NewVaultClient(&cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if vaultClient != nil {
		log.Info("Loading secrets from Vault")
		if err := config.ApplyVaultSecrets(ctx, cfg, vaultClient); err != nil {
			return nil, fmt.Errorf("failed to apply vault secrets: %w", err)
		}
	}

	m := metrics.New()
	events := router.New(cfg.Session.EventBuffer, m, log)
	dial := natsrepo.NewDialer(natsrepo.Config{
		Name:           cfg.Broker.Name,
		ReconnectWait:  cfg.Broker.ReconnectWait,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		BufferSize:     cfg.Broker.BufferSize,
		OnDrop:         m.ObserveDroppedMessage,
	}, log)

	worker := app.NewWorker(app.Options{
		RetryDelay:          cfg.Broker.ReconnectWait,
		TraceStream:         cfg.Broker.TraceStream,
		TraceRoot:           cfg.Broker.TraceRoot,
		ConsumerDescription: cfg.Broker.ConsumerDescription,
		PollInterval:        cfg.Broker.StreamPollInterval,
		StrictSubjects:      cfg.Session.StrictSubjects,
		QueueSize:           cfg.Session.QueueSize,
		OnConsumersChange:   m.SetConsumers,
	}, dial, events, log)

	return &runtime{cfg: cfg, log: log, metrics: m, events: events, worker: worker}, nil
}

// ignoreCanceled treats a shutdown by signal as success.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
