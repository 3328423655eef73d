package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

type memoryStore struct {
	keys map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.keys[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.keys[key] = value.(string)
	return nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func newTestConsumer(t *testing.T) (*Consumer, *memoryStore, func() int64) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	store := &memoryStore{keys: map[string]string{}}
	manager, err := idempotency.NewManager(store, time.Hour)
	require.NoError(t, err)
	consumer := &Consumer{
		name:        OrderNotificationConsumer,
		service:     svc,
		decoders:    registry.NewConsumerDecoders(),
		idempotency: manager,
		logg:        logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard}),
	}
	count := func() int64 {
		var n int64
		require.NoError(t, conn.Model(&models.Notification{}).Count(&n).Error)
		return n
	}
	return consumer, store, count
}

func envelopeBody(t *testing.T, eventID uuid.UUID, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID.String(), OccurredAt: time.Now().UTC(), Data: raw})
	require.NoError(t, err)
	return body
}

func TestConsumerProcessesOrderPaidOnce(t *testing.T) {
	consumer, _, count := newTestConsumer(t)
	ctx := context.Background()
	body := envelopeBody(t, uuid.New(), payloads.OrderPaidEvent{
		OrderID: uuid.New(),
		BuyerID: uuid.New(),
		Total:   decimal.RequireFromString("5.00"),
		Sellers: []payloads.SellerPayout{{SellerID: uuid.New(), Amount: decimal.RequireFromString("5.00")}},
	})

	result := consumer.process(ctx, string(enums.EventOrderPaid), body, "m-1")
	require.True(t, result.ack)
	require.Equal(t, int64(1), count())

	result = consumer.process(ctx, string(enums.EventOrderPaid), body, "m-2")
	require.True(t, result.ack)
	require.Equal(t, int64(1), count())
}

func TestConsumerAcksUndecodableMessages(t *testing.T) {
	consumer, _, count := newTestConsumer(t)
	ctx := context.Background()

	result := consumer.process(ctx, string(enums.EventOrderPaid), []byte("{not json"), "m-1")
	require.True(t, result.ack)

	result = consumer.process(ctx, string(enums.EventUserRegistered), []byte("{}"), "m-2")
	require.True(t, result.ack)
	require.Zero(t, count())
}

func TestConsumerAcksInvalidPayloadAndClearsMark(t *testing.T) {
	consumer, store, count := newTestConsumer(t)
	ctx := context.Background()
	body := envelopeBody(t, uuid.New(), payloads.OrderShippingUpdatedEvent{
		OrderID: uuid.New(),
		To:      enums.ShippingStatusShipped,
	})

	result := consumer.process(ctx, string(enums.EventOrderShippingUpdated), body, "m-1")
	require.True(t, result.ack)
	require.Empty(t, store.keys)
	require.Zero(t, count())
}

type flakyService struct {
	Service
}

func (flakyService) NotifyShipping(context.Context, payloads.OrderShippingUpdatedEvent) error {
	return errors.New("connection reset")
}

func TestConsumerNacksTransientFailure(t *testing.T) {
	consumer, store, _ := newTestConsumer(t)
	consumer.service = flakyService{Service: consumer.service}
	body := envelopeBody(t, uuid.New(), payloads.OrderShippingUpdatedEvent{
		OrderID: uuid.New(),
		BuyerID: uuid.New(),
		To:      enums.ShippingStatusShipped,
	})

	result := consumer.process(context.Background(), string(enums.EventOrderShippingUpdated), body, "m-1")
	require.True(t, result.nack)
	require.Empty(t, store.keys)
}

func TestConsumerNacksWhileAnotherDeliveryHoldsClaim(t *testing.T) {
	consumer, store, count := newTestConsumer(t)
	eventID := uuid.New()
	body := envelopeBody(t, eventID, payloads.OrderShippingUpdatedEvent{
		OrderID: uuid.New(),
		BuyerID: uuid.New(),
		To:      enums.ShippingStatusShipped,
	})
	store.keys["evt:processed:"+consumer.name+":"+eventID.String()] = "processing"

	result := consumer.process(context.Background(), string(enums.EventOrderShippingUpdated), body, "m-1")
	require.True(t, result.nack)
	require.Zero(t, count())
}
