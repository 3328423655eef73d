package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	defaultNotificationRetention = 90 * 24 * time.Hour
	defaultCleanupBatch          = 500
)

type notificationCleaner interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger    *logger.Logger
	Cleaner   notificationCleaner
	Retention time.Duration
	BatchSize int
}

// notificationCleanupJob purges notifications read before the retention
// window in fixed-size batches so a large backlog never holds one long
// delete. Unread notifications are kept regardless of age.
type notificationCleanupJob struct {
	logg      *logger.Logger
	cleaner   notificationCleaner
	retention time.Duration
	batch     int
	now       func() time.Time
}

func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Cleaner == nil {
		return nil, errors.New("notifications service required")
	}
	job := &notificationCleanupJob{
		logg:      params.Logger,
		cleaner:   params.Cleaner,
		retention: params.Retention,
		batch:     params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultNotificationRetention
	}
	if job.batch <= 0 {
		job.batch = defaultCleanupBatch
	}
	return job, nil
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("notification cleanup stopped after %d rows: %w", total, err)
		}
		deleted, err := j.cleaner.DeleteReadBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("notification cleanup after %d rows: %w", total, err)
		}
		total += deleted
		batches++
		if deleted < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
		"batches":      batches,
	}), "notification cleanup complete")
	return nil
}
