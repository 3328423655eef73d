package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// DLQRepository stores outbox rows that exhausted their retries.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	return tx.Create(&entry).Error
}

// CountByReason breaks the parked events down by why they stopped retrying.
func (r *DLQRepository) CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
	var rows []struct {
		ErrorReason enums.OutboxDLQErrorReason
		Total       int64
	}
	err := r.db.WithContext(ctx).Model(&models.OutboxDLQ{}).
		Select("error_reason, COUNT(*) AS total").
		Group("error_reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.OutboxDLQErrorReason]int64, len(rows))
	for _, row := range rows {
		counts[row.ErrorReason] = row.Total
	}
	return counts, nil
}

// DeleteFailedBefore purges dead letters recorded before cutoff.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("failed_at < ?", cutoff).
		Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

// Requeue hands dead-lettered events back to the relay. The outbox rows get a
// fresh attempt budget and their dead-letter entries are removed in the same
// transaction. Events already published, or without a dead-letter entry, are
// left alone. It returns how many events were requeued.
func (r *DLQRepository) Requeue(ctx context.Context, eventIDs ...uuid.UUID) (int64, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}
	var requeued int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parked []uuid.UUID
		if err := tx.Model(&models.OutboxDLQ{}).
			Where("event_id IN ?", eventIDs).
			Distinct().
			Pluck("event_id", &parked).Error; err != nil {
			return err
		}
		if len(parked) == 0 {
			return nil
		}
		res := tx.Model(&models.OutboxEvent{}).
			Where("id IN ?", parked).
			Where("published_at IS NULL").
			Updates(map[string]any{
				"attempt_count": 0,
				"last_error":    nil,
			})
		if res.Error != nil {
			return res.Error
		}
		requeued = res.RowsAffected
		return tx.Where("event_id IN ?", parked).Delete(&models.OutboxDLQ{}).Error
	})
	if err != nil {
		return 0, err
	}
	return requeued, nil
}
