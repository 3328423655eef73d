package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

const (
	OrderNotificationConsumer   = "order-notifications"
	CatalogNotificationConsumer = "catalog-notifications"
)

// Consumer turns published domain events into user notifications.
type Consumer struct {
	name         string
	service      Service
	subscription *pubsub.Subscriber
	decoders     *registry.DecoderRegistry
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a notification consumer. The name scopes idempotency
// marks so separate subscriptions never share them.
func NewConsumer(name string, svc Service, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if name == "" {
		return nil, fmt.Errorf("consumer name required")
	}
	if svc == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		name:         name,
		service:      svc,
		subscription: subscription,
		decoders:     registry.NewConsumerDecoders(),
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.Attributes["event_type"], msg.Data, msg.ID)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, eventType string, body []byte, messageID string) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"consumer":   c.name,
		"message_id": messageID,
		"event_type": eventType,
	})

	kind := enums.OutboxEventType(eventType)
	switch kind {
	case enums.EventOrderPaid, enums.EventOrderShippingUpdated, enums.EventProductStatusChanged:
	default:
		c.logg.Info(logCtx, "skipping unhandled event")
		return processResult{ack: true}
	}

	envelope, payload, err := c.decoders.DecodeMessage(kind, body)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode event", err)
		return c.resultFor(err)
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	err = c.idempotency.Guard(ctx, c.name, eventID, func(ctx context.Context) error {
		return c.handle(ctx, payload)
	})
	switch {
	case err == nil:
		c.logg.Info(logCtx, "notifications written")
		return processResult{ack: true}
	case errors.Is(err, idempotency.ErrDuplicate):
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	case errors.Is(err, idempotency.ErrInProgress):
		c.logg.Warn(logCtx, "event claimed by another delivery; retrying later")
		return processResult{nack: true}
	default:
		c.logg.Error(logCtx, "notification handling failed", err)
		return c.resultFor(err)
	}
}

func (c *Consumer) handle(ctx context.Context, payload interface{}) error {
	switch event := payload.(type) {
	case *payloads.OrderPaidEvent:
		return c.service.NotifyOrder(ctx, *event)
	case *payloads.OrderShippingUpdatedEvent:
		return c.service.NotifyShipping(ctx, *event)
	case *payloads.ProductStatusChangedEvent:
		return c.service.NotifyProductModerated(ctx, *event)
	default:
		return registry.NewNonRetryableError(fmt.Errorf("unexpected payload %T", payload))
	}
}

// resultFor acks failures that a redelivery cannot fix.
func (c *Consumer) resultFor(err error) processResult {
	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) || !pkgerrors.Retryable(err) {
		return processResult{ack: true}
	}
	return processResult{nack: true}
}
