package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dejobratic/orderflow/internal/kafka"
	"github.com/dejobratic/orderflow/internal/orders/fraud"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/stream"
	"github.com/spf13/cobra"
)

func newProcessCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Consume raw orders, score them for fraud and emit validated events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runProcess(ctx, opts)
		},
	}
}

func runProcess(ctx context.Context, opts *rootOptions) error {
	rt, err := bootstrap(ctx, opts, "risk-processor")
	if err != nil {
		return err
	}
	defer rt.shutdown()
	cfg, logger := rt.cfg, rt.logger

	if !cfg.Kafka.Enabled() {
		return errors.New("stream processor requires KAFKA_BROKERS")
	}

	location, err := cfg.Fraud.Location()
	if err != nil {
		return err
	}
	scorer, err := fraud.NewScorer(fraud.Config{
		Enabled:             cfg.Fraud.Enabled,
		SuspiciousThreshold: cfg.Fraud.SuspiciousThreshold,
		HighRiskThreshold:   cfg.Fraud.HighRiskThreshold,
		Location:            location,
	})
	if err != nil {
		return err
	}

	pool, err := rt.openDatabase(ctx)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		return err
	}
	defer pool.Close()

	audit, err := rt.auditRepository(pool)
	if err != nil {
		return err
	}

	pub, err := rt.newPublisher()
	if err != nil {
		logger.Error("failed to create publisher", "error", err)
		return err
	}
	defer pub.close()

	ordersMetrics, err := metrics.NewMetrics(rt.meter)
	if err != nil {
		return fmt.Errorf("create orders metrics: %w", err)
	}

	streamCfg := stream.Config{AlertTopic: cfg.Kafka.AlertTopic, Location: location}
	pipeline := stream.NewPipeline(streamCfg, scorer, audit, pub,
		stream.WithLogger(logger),
		stream.WithMetrics(ordersMetrics),
	)
	processor := stream.NewProcessor(pipeline, pub, cfg.Kafka.ValidatedTopic, logger)

	consumerCfg := kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		GroupID:       cfg.Kafka.ConsumerGroup,
		Topic:         cfg.Kafka.RawTopic,
		HandleTimeout: cfg.Kafka.HandleTimeout,
	}
	consumer := kafka.NewConsumer(kafka.NewReader(consumerCfg), processor, consumerCfg, logger, pub.metrics)
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Error("failed to close consumer", "error", err)
		}
	}()

	logger.Info("risk processor starting",
		"raw_topic", cfg.Kafka.RawTopic,
		"validated_topic", cfg.Kafka.ValidatedTopic,
		"alert_topic", cfg.Kafka.AlertTopic,
		"fraud_enabled", cfg.Fraud.Enabled,
	)
	return consumer.Run(ctx)
}
