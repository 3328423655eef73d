// Package relay moves committed outbox rows onto the message broker. Rows are
// claimed with SKIP LOCKED inside one transaction per batch, published, and
// then marked published, failed or dead-lettered in the same transaction.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type TxRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type Broker interface {
	Ping(context.Context) error
	Publisher(topic string) *gcppubsub.Publisher
}

type OutboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type DeadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type Resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Recorder receives one observation per settled row.
type Recorder interface {
	ObserveEvent(eventType, outcome string, lag time.Duration)
}

type Params struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          TxRunner
	Broker      Broker
	Outbox      OutboxStore
	DeadLetters DeadLetterStore
	Registry    Resolver
	Metrics     Recorder
	// NewPublisher overrides the broker-backed publisher, for tests.
	NewPublisher func(topic string) Publisher
}

type Relay struct {
	logg         *logger.Logger
	db           TxRunner
	broker       Broker
	outbox       OutboxStore
	deadLetters  DeadLetterStore
	registry     Resolver
	metrics      Recorder
	publishers   *publisherSet
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	timeout      time.Duration
	now          func() time.Time
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil && p.NewPublisher == nil:
		return nil, errors.New("broker is required")
	case p.Outbox == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dead letter repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := p.NewPublisher
	if factory == nil {
		factory = func(topic string) Publisher {
			return newBrokerPublisher(p.Broker.Publisher(topic))
		}
	}
	recorder := p.Metrics
	if recorder == nil {
		recorder = discardRecorder{}
	}

	r := &Relay{
		logg:         p.Logger,
		db:           p.DB,
		broker:       p.Broker,
		outbox:       p.Outbox,
		deadLetters:  p.DeadLetters,
		registry:     p.Registry,
		metrics:      recorder,
		publishers:   newPublisherSet(factory),
		batchSize:    orDefault(p.Config.BatchSize, defaultBatchSize),
		maxAttempts:  orDefault(p.Config.MaxAttempts, defaultMaxAttempts),
		pollInterval: defaultPollInterval,
		timeout:      defaultPublishTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if p.Config.PollIntervalMS > 0 {
		r.pollInterval = time.Duration(p.Config.PollIntervalMS) * time.Millisecond
	}
	return r, nil
}

// Run drains the outbox until ctx ends. An empty poll sleeps one interval; a
// failed batch backs off exponentially up to maxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.ready(ctx); err != nil {
		return err
	}
	defer r.publishers.stopAll()

	delay := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		handled, err := r.drainOnce(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			delay = min(delay*2, maxBackoff)
		case handled > 0:
			delay = r.pollInterval
			continue
		default:
			delay = r.pollInterval
		}
		if err := sleep(ctx, delay+rand.N(jitterWindow)); err != nil {
			return err
		}
	}
}

func (r *Relay) ready(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if r.broker != nil {
		if err := r.broker.Ping(ctx); err != nil {
			return fmt.Errorf("pubsub ping failed: %w", err)
		}
	}
	return nil
}

type discardRecorder struct{}

func (discardRecorder) ObserveEvent(string, string, time.Duration) {}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
