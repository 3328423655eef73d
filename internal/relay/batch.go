package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

// inflight is one claimed row between Publish and its acknowledgement.
type inflight struct {
	event  models.OutboxEvent
	topic  string
	key    string
	pub    Publisher
	result PublishResult
	err    error
}

type batchStats map[string]int

// drainOnce publishes one batch and returns how many rows it settled. All
// messages are handed to their publishers before any result is awaited, so a
// batch costs one broker round trip rather than one per row.
func (r *Relay) drainOnce(ctx context.Context) (int, error) {
	var stats batchStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		events, err := r.outbox.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil || len(events) == 0 {
			return err
		}

		waitCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		pending := make([]inflight, 0, len(events))
		for _, event := range events {
			pending = append(pending, r.dispatch(waitCtx, event))
		}
		for _, item := range pending {
			outcome, err := r.settle(waitCtx, tx, item)
			if err != nil {
				return err
			}
			stats[outcome]++
			r.metrics.ObserveEvent(string(item.event.EventType), outcome, r.now().Sub(item.event.CreatedAt))
		}
		return nil
	})
	total := stats[metrics.OutboxPublished] + stats[metrics.OutboxRetried] + stats[metrics.OutboxDeadLettered]
	if err == nil && total > 0 {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"published":     stats[metrics.OutboxPublished],
			"retried":       stats[metrics.OutboxRetried],
			"dead_lettered": stats[metrics.OutboxDeadLettered],
		}), "outbox batch complete")
	}
	return total, err
}

func (r *Relay) dispatch(ctx context.Context, event models.OutboxEvent) inflight {
	item := inflight{event: event, key: event.AggregateID.String()}
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		item.err = err
		return item
	}
	item.topic = resolved.Descriptor.Topic
	item.pub = r.publishers.get(item.topic)
	if item.pub == nil {
		item.err = registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", item.topic))
		return item
	}
	item.result = item.pub.Publish(ctx, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: item.key,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   item.key,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
		},
	})
	return item
}

// settle waits for the broker and records the row's fate. Only an error from
// the store aborts the batch; publish failures become retried or dead-lettered rows.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, item inflight) (string, error) {
	err := item.err
	if err == nil {
		_, err = item.result.Get(ctx)
	}
	if err == nil {
		if markErr := r.outbox.MarkPublishedTx(tx, item.event.ID); markErr != nil {
			return "", fmt.Errorf("mark published %s: %w", item.event.ID, markErr)
		}
		r.logg.Debug(r.fieldsFor(ctx, item), "outbox event published")
		return metrics.OutboxPublished, nil
	}

	if item.pub != nil {
		item.pub.Resume(item.key)
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		return metrics.OutboxDeadLettered, r.deadLetter(ctx, tx, item, enums.OutboxDLQReasonNonRetryable, err)
	}
	if item.event.AttemptCount+1 >= r.maxAttempts {
		return metrics.OutboxDeadLettered, r.deadLetter(ctx, tx, item, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
	}

	r.logg.Warn(r.logg.WithField(r.fieldsFor(ctx, item), "error", err.Error()), "outbox publish failed; will retry")
	if markErr := r.outbox.MarkFailedTx(tx, item.event.ID, err); markErr != nil {
		return "", fmt.Errorf("mark failed %s: %w", item.event.ID, markErr)
	}
	return metrics.OutboxRetried, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, item inflight, reason enums.OutboxDLQErrorReason, cause error) error {
	logCtx := r.logg.WithFields(r.fieldsFor(ctx, item), map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	})
	r.logg.Warn(logCtx, "outbox event dead-lettered")

	message := cause.Error()
	if err := r.deadLetters.InsertTx(tx, models.OutboxDLQ{
		EventID:       item.event.ID,
		EventType:     item.event.EventType,
		AggregateType: item.event.AggregateType,
		AggregateID:   item.event.AggregateID,
		Payload:       item.event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  item.event.AttemptCount,
		FailedAt:      r.now(),
	}); err != nil {
		return fmt.Errorf("insert dead letter %s: %w", item.event.ID, err)
	}
	if err := r.outbox.MarkTerminalTx(tx, item.event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", item.event.ID, err)
	}
	return nil
}

func (r *Relay) fieldsFor(ctx context.Context, item inflight) context.Context {
	fields := map[string]any{
		"outbox_id":      item.event.ID.String(),
		"event_type":     item.event.EventType,
		"aggregate_type": item.event.AggregateType,
		"aggregate_id":   item.key,
		"attempt_count":  item.event.AttemptCount,
	}
	if item.topic != "" {
		fields["topic"] = item.topic
	}
	return r.logg.WithFields(ctx, fields)
}
