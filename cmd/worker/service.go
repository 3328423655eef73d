package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(context.Context) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies map[string]pinger
	Consumers    map[string]consumer
}

// Service runs every subscription consumer until the context ends or one of
// them fails.
type Service struct {
	logg         *logger.Logger
	dependencies map[string]pinger
	consumers    map[string]consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Consumers) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for name, c := range params.Consumers {
		if c == nil {
			return nil, fmt.Errorf("consumer %s is nil", name)
		}
	}
	return &Service{
		logg:         params.Logger,
		dependencies: params.Dependencies,
		consumers:    params.Consumers,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, name := range sortedKeys(s.dependencies) {
		dep := s.dependencies[name]
		if dep == nil {
			return fmt.Errorf("%s client not initialized", name)
		}
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

// Run blocks until ctx is canceled or a consumer exits. The first consumer
// to stop cancels the rest.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type exit struct {
		name string
		err  error
	}
	exits := make(chan exit, len(s.consumers))
	var wg sync.WaitGroup
	for _, name := range sortedKeys(s.consumers) {
		name, c := name, s.consumers[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumerCtx := s.logg.WithField(runCtx, "consumer", name)
			s.logg.Info(consumerCtx, "consumer started")
			exits <- exit{name: name, err: c.Run(consumerCtx)}
		}()
	}

	var first exit
	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
		first.err = ctx.Err()
	case first = <-exits:
		if ctx.Err() != nil {
			first.err = ctx.Err()
		} else if first.err != nil && !errors.Is(first.err, context.Canceled) {
			s.logg.Error(s.logg.WithField(ctx, "consumer", first.name), "consumer stopped unexpectedly", first.err)
		} else {
			first.err = fmt.Errorf("consumer %s exited", first.name)
			s.logg.Warn(ctx, first.err.Error())
		}
	}
	cancel()
	wg.Wait()
	return first.err
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
