package checkout

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/saga"
)

// SendNotification emails the customer and texts them when a phone is on
// file. Failures are reported as notification_sent=false.
type SendNotification struct {
	notifier ports.Notifier
	timeout  time.Duration
	logger   *slog.Logger
}

func (s *SendNotification) Name() string { return StageSendNotification }

func (s *SendNotification) Execute(ctx context.Context, order domain.Order) (saga.Result, error) {
	sent := true
	if err := s.notify(ctx, order); err != nil {
		sent = false
		s.logger.WarnContext(ctx, "notification failed",
			"order_id", order.OrderID,
			"error", err,
		)
	}
	return saga.Complete(order, map[string]any{OutputNotificationSent: sent}), nil
}

func (s *SendNotification) notify(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.notifier.SendEmail(ctx, order); err != nil {
		return err
	}
	if order.Customer.Phone != "" {
		return s.notifier.SendSMS(ctx, order)
	}
	return nil
}

// PublishOrderEvent hands the confirmed order to the raw orders topic.
// Transport failures are reported as published=false.
type PublishOrderEvent struct {
	publisher ports.Publisher
	topic     string
	timeout   time.Duration
	logger    *slog.Logger
}

func (s *PublishOrderEvent) Name() string { return StagePublishEvent }

func (s *PublishOrderEvent) Execute(ctx context.Context, order domain.Order) (saga.Result, error) {
	published := true
	if err := s.publish(ctx, order); err != nil {
		published = false
		s.logger.ErrorContext(ctx, "failed to publish order",
			"order_id", order.OrderID,
			"topic", s.topic,
			"error", err,
		)
	}
	return saga.Complete(order, map[string]any{OutputPublished: published}), nil
}

func (s *PublishOrderEvent) publish(ctx context.Context, order domain.Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.publisher.Publish(ctx, s.topic, order.OrderID, payload)
}
