package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/telemetry"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultHandleTimeout = 30 * time.Second
	commitTimeout        = 5 * time.Second
	fetchRetryDelay      = time.Second
)

// Reader is the subset of *kafkago.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Handler processes one message. It must not block past ctx and it owns its
// own failure handling: the consumer commits the offset regardless.
type Handler interface {
	HandleMessage(ctx context.Context, key, value []byte)
}

type HandlerFunc func(ctx context.Context, key, value []byte)

func (f HandlerFunc) HandleMessage(ctx context.Context, key, value []byte) {
	f(ctx, key, value)
}

type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topic         string
	HandleTimeout time.Duration
}

// NewReader opens a consumer-group reader with manual commits.
func NewReader(cfg ConsumerConfig) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafkago.FirstOffset,
	})
}

// Consumer reads one topic and hands each message to a Handler, committing
// its offset once handling returns. A message is never redelivered after a
// failed handling attempt.
type Consumer struct {
	reader        Reader
	handler       Handler
	topic         string
	handleTimeout time.Duration
	logger        *slog.Logger
	metrics       *Metrics
}

func NewConsumer(reader Reader, handler Handler, cfg ConsumerConfig, logger *slog.Logger, metrics *Metrics) *Consumer {
	timeout := cfg.HandleTimeout
	if timeout <= 0 {
		timeout = DefaultHandleTimeout
	}
	return &Consumer{
		reader:        reader,
		handler:       handler,
		topic:         cfg.Topic,
		handleTimeout: timeout,
		logger:        logger,
		metrics:       metrics,
	}
}

// Run consumes until ctx is canceled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started", "topic", c.topic)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.InfoContext(ctx, "consumer stopped", "topic", c.topic)
				return nil
			}
			c.recordError(ctx, "fetch")
			c.logger.ErrorContext(ctx, "failed to fetch message", "topic", c.topic, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		c.handle(ctx, msg)

		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		err = c.reader.CommitMessages(commitCtx, msg)
		cancel()
		if err != nil {
			c.recordError(ctx, "commit")
			c.logger.ErrorContext(ctx, "failed to commit offset",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafkago.Message) {
	ctx, cancel := context.WithTimeout(ctx, c.handleTimeout)
	defer cancel()

	ctx = telemetry.ExtractHeaders(ctx, headerMap(msg.Headers))
	ctx, span := telemetry.StartConsumerSpan(ctx, "Consumer.HandleMessage", msg.Topic)
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)

	start := time.Now()
	c.handler.HandleMessage(ctx, msg.Key, msg.Value)
	if c.metrics != nil {
		c.metrics.RecordConsume(ctx, c.topic, time.Since(start).Seconds())
	}
	telemetry.SetSpanSuccess(span)
}

func headerMap(headers []kafkago.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func (c *Consumer) recordError(ctx context.Context, operation string) {
	if c.metrics != nil {
		c.metrics.RecordConsumerError(ctx, c.topic, operation)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
