package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/bazaar-backend/internal/relay"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/instance"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
	"github.com/angelmondragon/bazaar-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

// options are the command-line switches. -requeue hands the listed
// dead-lettered events back to the relay and exits without publishing.
type options struct {
	requeue []uuid.UUID
}

func parseOptions(args []string, output io.Writer) (options, error) {
	var (
		opts    options
		requeue string
	)
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&requeue, "requeue", "", "comma-separated dead-lettered event IDs to retry")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	for _, raw := range strings.Split(requeue, ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return options{}, fmt.Errorf("invalid event id %q: %w", raw, err)
		}
		opts.requeue = append(opts.requeue, id)
	}
	return opts, nil
}

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logg, opts); err != nil {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
}

// run owns every resource so deferred cleanup happens before main exits.
func run(ctx context.Context, logg *logger.Logger, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(serviceName),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWithLog(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	deadLetters := outbox.NewDLQRepository(dbClient.DB())
	if len(opts.requeue) > 0 {
		return requeue(ctx, logg, deadLetters, opts.requeue)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.RolePublisher, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeWithLog(ctx, logg, "pubsub", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("build event registry: %w", err)
	}
	outboxRelay, err := relay.New(relay.Params{
		Config:      cfg.Outbox,
		Logger:      logg,
		DB:          dbClient,
		Broker:      pubsubClient,
		Outbox:      outbox.NewRepository(dbClient.DB()),
		DeadLetters: deadLetters,
		Registry:    eventRegistry,
		Metrics:     metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("create outbox relay: %w", err)
	}

	logg.Info(ctx, "starting outbox publisher")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return metrics.Serve(groupCtx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg)
	})
	group.Go(func() error {
		return outboxRelay.Run(groupCtx)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}

func requeue(ctx context.Context, logg *logger.Logger, deadLetters *outbox.DLQRepository, ids []uuid.UUID) error {
	requeued, err := deadLetters.Requeue(ctx, ids...)
	if err != nil {
		return fmt.Errorf("requeue dead letters: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"requested": len(ids),
		"requeued":  requeued,
	}), "dead-lettered events requeued")
	if requeued < int64(len(ids)) {
		logg.Warn(ctx, "some events were not requeued; they are unknown, already published, or not dead-lettered")
	}
	return nil
}

func closeWithLog(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
