package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Repository persists in-app notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter inboxFilter, limit int, cursor *pagination.Cursor) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (markOutcome, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type inboxFilter struct {
	UserID     uuid.UUID
	UnreadOnly bool
}

type markOutcome int

const (
	markMissing markOutcome = iota
	markAlreadyRead
	markUpdated
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repository) List(ctx context.Context, filter inboxFilter, limit int, cursor *pagination.Cursor) ([]models.Notification, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ?", filter.UserID)
	if filter.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var rows []models.Notification
	err := query.
		Scopes(pagination.After(cursor, "")).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkRead stamps read_at once. Notifications owned by someone else are
// reported as missing.
func (r *repository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (markOutcome, error) {
	var row models.Notification
	err := r.db.WithContext(ctx).
		Select("id", "read_at").
		Where("id = ? AND user_id = ?", notificationID, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return markMissing, nil
	}
	if err != nil {
		return markMissing, err
	}
	if row.ReadAt != nil {
		return markAlreadyRead, nil
	}

	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", now)
	if res.Error != nil {
		return markMissing, res.Error
	}
	if res.RowsAffected == 0 {
		return markAlreadyRead, nil
	}
	return markUpdated, nil
}

func (r *repository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		UpdateColumn("read_at", now)
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	batch := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Select("id").
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Order("read_at").
		Limit(limit)
	res := r.db.WithContext(ctx).Where("id IN (?)", batch).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
