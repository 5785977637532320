package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crypto-price-tracker/internal/fetcher"
	"crypto-price-tracker/internal/metrics"
	"crypto-price-tracker/internal/scheduler"
	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
)

// Evaluator runs alert checks after samples for a tick are stored.
type Evaluator interface {
	Evaluate(ctx context.Context, now time.Time) error
}

// Sampler owns the periodic fetch, persist, evaluate loop.
type Sampler struct {
	scheduler *scheduler.Scheduler
	source    fetcher.PriceSource
	store     storage.PriceStore
	evaluator Evaluator
	locker    storage.AdvisoryLocker
	lockKey   int64
	logger    zerolog.Logger
}

// SamplerOptions collect the collaborators of a Sampler. Scheduler may be nil
// for one-off ticks; Evaluator may be nil to only record samples.
type SamplerOptions struct {
	Scheduler *scheduler.Scheduler
	Source    fetcher.PriceSource
	Store     storage.PriceStore
	Evaluator Evaluator
	LockKey   int64
}

// NewSampler constructs the sampling loop.
func NewSampler(opts SamplerOptions, logger zerolog.Logger) *Sampler {
	var locker storage.AdvisoryLocker
	if l, ok := opts.Store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Sampler{
		scheduler: opts.Scheduler,
		source:    opts.Source,
		store:     opts.Store,
		evaluator: opts.Evaluator,
		locker:    locker,
		lockKey:   opts.LockKey,
		logger:    logger.With().Str("component", "sampler").Logger(),
	}
}

// Run begins the scheduled sampling loop.
func (s *Sampler) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Tick)
}

// Tick executes one sampling round stamped with at.
func (s *Sampler) Tick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		metrics.ObserveTick(metrics.TickLockSkipped)
		s.logger.Debug().Time("tick", at).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.sample(ctx, at)
}

func (s *Sampler) sample(ctx context.Context, at time.Time) error {
	if s.source == nil || s.store == nil {
		return fmt.Errorf("sampler requires a price source and a price store")
	}

	tokens := token.All()
	prices, err := s.source.FetchPrices(ctx, tokens)
	if err != nil {
		metrics.ObserveTick(metrics.TickFetchError)
		return fmt.Errorf("fetch prices: %w", err)
	}

	samples := make([]storage.PriceSample, 0, len(tokens))
	var missing []string
	for _, tok := range tokens {
		price, ok := prices[tok]
		if !ok {
			missing = append(missing, tok.String())
			continue
		}
		samples = append(samples, storage.PriceSample{Token: tok, Price: price, Timestamp: at})
	}
	if len(missing) > 0 {
		metrics.ObserveTick(metrics.TickFetchError)
		return fmt.Errorf("fetch prices: %w: no data for %s", fetcher.ErrUpstream, strings.Join(missing, ","))
	}

	if err := s.store.InsertSamples(ctx, samples); err != nil {
		metrics.ObserveTick(metrics.TickPersistError)
		return fmt.Errorf("persist samples: %w", err)
	}

	event := s.logger.Info().Time("tick", at)
	for _, sample := range samples {
		metrics.ObserveSample(sample.Token.String(), sample.Price.InexactFloat64())
		event = event.Str(sample.Token.String(), sample.Price.String())
	}
	event.Msg("samples recorded")
	metrics.ObserveTick(metrics.TickSuccess)

	s.evaluate(ctx, at)
	return nil
}

func (s *Sampler) evaluate(ctx context.Context, at time.Time) {
	if s.evaluator == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Time("tick", at).Msg("alert evaluation panicked")
		}
	}()
	if err := s.evaluator.Evaluate(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("tick", at).Msg("alert evaluation failed")
	}
}

func (s *Sampler) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
