package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	defaultOutboxRetention     = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	// DeadLetters is optional. When set, parked events are purged after
	// DeadLetterRetention and the remainder is reported by reason.
	DeadLetters         deadLetterStore
	Retention           time.Duration
	DeadLetterRetention time.Duration
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}

type deadLetterStore interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error)
}

// NewOutboxRetentionJob deletes published outbox rows older than the
// retention window. Unpublished rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		repo:         params.Repository,
		dlq:          params.DeadLetters,
		retention:    params.Retention,
		dlqRetention: params.DeadLetterRetention,
		now:          time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.dlqRetention <= 0 {
		job.dlqRetention = defaultDeadLetterRetention
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	repo         outboxRetentionRepo
	dlq          deadLetterStore
	retention    time.Duration
	dlqRetention time.Duration
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)

	var errs error
	deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("outbox retention: %w", err))
	}
	pending, err := j.repo.CountPending(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("count pending outbox rows: %w", err))
	}
	fields := map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
		"rows_pending": pending,
	}
	if j.dlq != nil {
		errs = multierr.Append(errs, j.sweepDeadLetters(ctx, now, fields))
	}
	if errs != nil {
		return errs
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}

func (j *outboxRetentionJob) sweepDeadLetters(ctx context.Context, now time.Time, fields map[string]any) error {
	var errs error
	purged, err := j.dlq.DeleteFailedBefore(ctx, now.Add(-j.dlqRetention))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("purge dead-lettered events: %w", err))
	}
	fields["dead_letters_purged"] = purged

	byReason, err := j.dlq.CountByReason(ctx)
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("count dead-lettered events: %w", err))
	}
	var parked int64
	for reason, n := range byReason {
		parked += n
		fields["dead_letters_"+string(reason)] = n
	}
	fields["dead_letters_parked"] = parked
	if parked > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "dead_letters_parked", parked), "outbox events parked in dead-letter table")
	}
	return errs
}
