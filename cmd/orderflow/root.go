package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dejobratic/orderflow/internal/config"
	"github.com/dejobratic/orderflow/internal/kafka"
	"github.com/dejobratic/orderflow/internal/orders/adapters"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dejobratic/orderflow"

type rootOptions struct {
	envFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "orderflow",
		Short:         "Checkout saga API and fraud risk stream processor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional dotenv file loaded before the environment")

	cmd.AddCommand(
		newServeCommand(opts),
		newProcessCommand(opts),
		newMigrateCommand(opts),
	)
	return cmd
}

// runtime holds what every long-running subcommand needs.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	tel    *telemetry.Telemetry
	meter  metric.Meter
}

func bootstrap(ctx context.Context, opts *rootOptions, component string) (*runtime, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level, levelErr := telemetry.ParseLevel(cfg.Telemetry.LogLevel)
	logger := telemetry.NewLogger(os.Stdout, level,
		slog.String("service", cfg.Service.Name),
		slog.String("component", component),
	)
	slog.SetDefault(logger)
	if levelErr != nil {
		logger.Warn("falling back to info level", "error", levelErr)
	}

	var telOpts []telemetry.Option
	if cfg.Telemetry.OTelEndpoint == "" {
		telOpts = append(telOpts,
			telemetry.WithTraceExporter(telemetry.NewNoopTraceExporter()),
			telemetry.WithMetricExporter(telemetry.NewNoopMetricExporter()),
		)
	}
	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		Insecure:       cfg.Telemetry.OTelInsecure,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	}, telOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		tel:    tel,
		meter:  tel.Meter(meterName),
	}, nil
}

func (rt *runtime) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.HTTP.ShutdownGrace)
	defer cancel()
	if err := rt.tel.Shutdown(ctx); err != nil {
		rt.logger.Error("telemetry shutdown failed", "error", err)
	}
}

// publisher is a Kafka producer when brokers are configured and a logging
// publisher otherwise. ping is nil without Kafka.
type publisher struct {
	ports.Publisher
	metrics *kafka.Metrics
	ping    func(ctx context.Context) error
	close   func()
}

func (rt *runtime) newPublisher() (*publisher, error) {
	kafkaMetrics, err := kafka.NewMetrics(rt.meter)
	if err != nil {
		return nil, fmt.Errorf("create kafka metrics: %w", err)
	}

	if !rt.cfg.Kafka.Enabled() {
		rt.logger.Warn("no kafka brokers configured, events will only be logged")
		return &publisher{
			Publisher: adapters.NewObservablePublisher(kafka.NewLoggingPublisher(rt.logger), kafkaMetrics),
			metrics:   kafkaMetrics,
			close:     func() {},
		}, nil
	}

	producer, err := kafka.NewProducer(rt.cfg.Kafka.Brokers, rt.cfg.Kafka.ClientID)
	if err != nil {
		return nil, err
	}
	return &publisher{
		Publisher: adapters.NewObservablePublisher(producer, kafkaMetrics),
		metrics:   kafkaMetrics,
		ping:      producer.Ping,
		close:     producer.Close,
	}, nil
}
