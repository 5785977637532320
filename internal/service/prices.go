package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/fetcher"
	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
)

// Prices answers read queries over live and stored prices.
type Prices struct {
	source fetcher.PriceSource
	store  storage.PriceStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewPrices constructs the price query service.
func NewPrices(source fetcher.PriceSource, store storage.PriceStore, logger zerolog.Logger) *Prices {
	return &Prices{
		source: source,
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "prices").Logger(),
	}
}

// Current fetches live prices for every tracked token. A token missing from
// the upstream reply is reported as ErrUpstream.
func (p *Prices) Current(ctx context.Context) (map[token.Token]decimal.Decimal, error) {
	if p.source == nil {
		return nil, fmt.Errorf("price source not configured")
	}
	tokens := token.All()
	prices, err := p.source.FetchPrices(ctx, tokens)
	if err != nil {
		return nil, err
	}
	for _, tok := range tokens {
		if _, ok := prices[tok]; !ok {
			return nil, fmt.Errorf("%w: no price for %s", fetcher.ErrUpstream, tok)
		}
	}
	return prices, nil
}

// Recent lists the newest limit samples across tokens, newest first.
func (p *Prices) Recent(ctx context.Context, limit int) ([]storage.PriceSample, error) {
	return p.store.ListRecentSamples(ctx, limit)
}

// LastDay returns the samples of the past 24 hours grouped by token, oldest
// first. Every tracked token has an entry, possibly empty.
func (p *Prices) LastDay(ctx context.Context) (map[token.Token][]storage.PriceSample, error) {
	to := p.now()
	samples, err := p.store.ListSamplesBetween(ctx, to.Add(-24*time.Hour), to.Add(time.Nanosecond))
	if err != nil {
		return nil, err
	}

	grouped := make(map[token.Token][]storage.PriceSample, len(token.All()))
	for _, tok := range token.All() {
		grouped[tok] = []storage.PriceSample{}
	}
	for _, sample := range samples {
		if _, ok := grouped[sample.Token]; !ok {
			continue
		}
		grouped[sample.Token] = append(grouped[sample.Token], sample)
	}
	return grouped, nil
}

// History lists the newest limit samples for the named token, newest first.
// An unknown name yields an error wrapping token.ErrUnsupported.
func (p *Prices) History(ctx context.Context, raw string, limit int) ([]storage.PriceSample, error) {
	tok, err := token.Parse(raw)
	if err != nil {
		return nil, err
	}
	return p.store.ListTokenSamples(ctx, tok, limit)
}
