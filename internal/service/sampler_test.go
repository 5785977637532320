package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/fetcher"
	"crypto-price-tracker/internal/token"
)

var tickAt = time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)

func bothPrices() map[token.Token]decimal.Decimal {
	return map[token.Token]decimal.Decimal{
		token.Ethereum: decimal.RequireFromString("3120.55"),
		token.Matic:    decimal.RequireFromString("0.91"),
	}
}

func TestTickStoresOneSamplePerTokenAtTickTime(t *testing.T) {
	store := &memoryPrices{}
	evaluator := &countingEvaluator{}
	sampler := NewSampler(SamplerOptions{
		Source:    &stubSource{prices: bothPrices()},
		Store:     store,
		Evaluator: evaluator,
	}, zerolog.Nop())

	if err := sampler.Tick(context.Background(), tickAt); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(store.samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(store.samples))
	}
	for _, s := range store.samples {
		if !s.Timestamp.Equal(tickAt) {
			t.Fatalf("sample %s stamped %s, want %s", s.Token, s.Timestamp, tickAt)
		}
		if !s.Price.Equal(bothPrices()[s.Token]) {
			t.Fatalf("unexpected price %s for %s", s.Price, s.Token)
		}
	}
	if len(evaluator.calls) != 1 || !evaluator.calls[0].Equal(tickAt) {
		t.Fatalf("evaluator should run once with the tick time, got %v", evaluator.calls)
	}
}

func TestTickFetchFailureWritesNothing(t *testing.T) {
	store := &memoryPrices{}
	evaluator := &countingEvaluator{}
	sampler := NewSampler(SamplerOptions{
		Source:    &stubSource{err: fetcher.ErrUpstream},
		Store:     store,
		Evaluator: evaluator,
	}, zerolog.Nop())

	err := sampler.Tick(context.Background(), tickAt)
	if !errors.Is(err, fetcher.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(store.samples) != 0 {
		t.Fatalf("no samples should be written, got %d", len(store.samples))
	}
	if len(evaluator.calls) != 0 {
		t.Fatal("evaluator must not run after a failed fetch")
	}
}

func TestTickMissingTokenWritesNothing(t *testing.T) {
	store := &memoryPrices{}
	partial := bothPrices()
	delete(partial, token.Matic)
	sampler := NewSampler(SamplerOptions{
		Source: &stubSource{prices: partial},
		Store:  store,
	}, zerolog.Nop())

	err := sampler.Tick(context.Background(), tickAt)
	if !errors.Is(err, fetcher.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(store.samples) != 0 {
		t.Fatalf("partial fetch must not persist, got %d samples", len(store.samples))
	}
}

func TestTickPersistFailureSkipsEvaluation(t *testing.T) {
	evaluator := &countingEvaluator{}
	sampler := NewSampler(SamplerOptions{
		Source:    &stubSource{prices: bothPrices()},
		Store:     &memoryPrices{insertErr: errBoom},
		Evaluator: evaluator,
	}, zerolog.Nop())

	if err := sampler.Tick(context.Background(), tickAt); !errors.Is(err, errBoom) {
		t.Fatalf("expected persist error, got %v", err)
	}
	if len(evaluator.calls) != 0 {
		t.Fatal("evaluator must not run after a failed insert")
	}
}

func TestTickSurvivesEvaluatorFailure(t *testing.T) {
	for _, evaluator := range []*countingEvaluator{{err: errBoom}, {panic: true}} {
		store := &memoryPrices{}
		sampler := NewSampler(SamplerOptions{
			Source:    &stubSource{prices: bothPrices()},
			Store:     store,
			Evaluator: evaluator,
		}, zerolog.Nop())

		if err := sampler.Tick(context.Background(), tickAt); err != nil {
			t.Fatalf("evaluator problems should not fail the tick: %v", err)
		}
		if len(store.samples) != 2 {
			t.Fatalf("samples should be kept, got %d", len(store.samples))
		}
	}
}

func TestTickWiresEvaluatorEndToEnd(t *testing.T) {
	store := &memoryPrices{}
	store.add(token.Ethereum, "3000", tickAt.Add(-time.Hour))
	store.add(token.Matic, "0.91", tickAt.Add(-time.Hour))
	notifier := &recordingNotifier{}
	evaluator := NewAlertEvaluator(store, &memoryAlerts{}, notifier, EvaluatorOptions{
		ThresholdPct:     decimal.NewFromInt(3),
		Window:           time.Hour,
		DefaultRecipient: "ops@example.com",
	}, zerolog.Nop())
	sampler := NewSampler(SamplerOptions{
		Source:    &stubSource{prices: bothPrices()},
		Store:     store,
		Evaluator: evaluator,
	}, zerolog.Nop())

	if err := sampler.Tick(context.Background(), tickAt); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(notifier.spikes) != 1 || notifier.spikes[0].spike.Token != token.Ethereum {
		t.Fatalf("expected a single ethereum spike, got %+v", notifier.spikes)
	}
}

func TestRunRequiresScheduler(t *testing.T) {
	sampler := NewSampler(SamplerOptions{}, zerolog.Nop())
	if err := sampler.Run(context.Background()); err == nil {
		t.Fatal("Run without scheduler should fail")
	}
}
