package kafka

import (
	"context"
	"log/slog"
)

// LoggingPublisher logs messages instead of sending them. Used when no
// brokers are configured.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	p.logger.DebugContext(ctx, "publish skipped, kafka disabled",
		"topic", topic,
		"key", key,
		"bytes", len(payload),
	)
	return nil
}
