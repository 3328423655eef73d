// Package idempotency deduplicates at-least-once event deliveries per consumer.
//
// A delivery first claims the event with a short-lived "processing" mark. The
// mark becomes "done" with the long retention TTL once the handler succeeds and
// is removed when it fails, so the broker's redelivery runs the handler again.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

const (
	markProcessing = "processing"
	markDone       = "done"

	// claimTTL frees an event whose worker died mid-handler.
	claimTTL = 5 * time.Minute
)

var (
	// ErrDuplicate means the event was already handled; ack it.
	ErrDuplicate = errors.New("event already processed")
	// ErrInProgress means another delivery holds the claim; nack and retry later.
	ErrInProgress = errors.New("event is being processed by another delivery")
)

// Store is satisfied by pkg/redis.Client.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager keys marks as bz:idempotency:evt:processed:<consumer>:<event_id>.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Guard runs fn at most once per consumer and event.
func (m *Manager) Guard(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}

	claimed, err := m.store.SetNX(ctx, key, markProcessing, m.claimTTL())
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !claimed {
		return m.existing(ctx, key)
	}

	if err := fn(ctx); err != nil {
		if delErr := m.store.Del(context.WithoutCancel(ctx), key); delErr != nil {
			return multierr.Append(err, fmt.Errorf("release claim: %w", delErr))
		}
		return err
	}
	if err := m.store.Set(context.WithoutCancel(ctx), key, markDone, m.ttl); err != nil {
		return fmt.Errorf("mark event done: %w", err)
	}
	return nil
}

// Forget drops the mark so the event can be handled again.
func (m *Manager) Forget(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) existing(ctx context.Context, key string) error {
	mark, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// the claim lapsed between SETNX and GET
		return ErrInProgress
	case err != nil:
		return fmt.Errorf("read event mark: %w", err)
	case mark == markDone:
		return ErrDuplicate
	default:
		return ErrInProgress
	}
}

func (m *Manager) claimTTL() time.Duration {
	if m.ttl > 0 && m.ttl < claimTTL {
		return m.ttl
	}
	return claimTTL
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
