package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-price-tracker/internal/fetcher"
	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
)

const backfillBatchSize = 500

// Backfill imports historical prices from the price API into the store.
// Points outside [From, To) are dropped. The store is append-only, so
// re-running over the same range duplicates samples.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if err := a.Config.PriceSource.Require(); err != nil {
		return err
	}

	from := opts.From.UTC()
	to := opts.To.UTC()
	if !from.Before(to) {
		return errors.New("backfill range is empty, check --from/--to")
	}

	tokens := opts.Tokens
	if len(tokens) == 0 {
		tokens = token.All()
	}

	var store storage.PriceStore
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		s, closeStore, err := a.requireStore(ctx, "backfill")
		if err != nil {
			return err
		}
		defer closeStore()
		store = s
	}

	return a.backfill(ctx, a.newSource(), store, tokens, from, to)
}

func (a *App) backfill(ctx context.Context, source fetcher.HistorySource, store storage.PriceStore, tokens []token.Token, from, to time.Time) error {
	failed := 0
	for _, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return err
		}

		points, err := source.FetchHistory(ctx, tok, from, to)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("token", tok.String()).Msg("backfill fetch failed")
			continue
		}

		samples := make([]storage.PriceSample, 0, len(points))
		for _, p := range points {
			at := p.Timestamp.UTC()
			if at.Before(from) || !at.Before(to) {
				continue
			}
			samples = append(samples, storage.PriceSample{Token: tok, Price: p.Price, Timestamp: at})
		}

		if store != nil {
			if err := insertBatches(ctx, store, samples); err != nil {
				failed++
				a.Logger.Error().Err(err).Str("token", tok.String()).Msg("backfill persist failed")
				continue
			}
		}

		a.Logger.Info().
			Str("token", tok.String()).
			Int("points", len(samples)).
			Bool("written", store != nil).
			Msg("backfill token complete")
	}

	if failed > 0 {
		return fmt.Errorf("backfill failed for %d of %d tokens, check logs", failed, len(tokens))
	}
	return nil
}

func insertBatches(ctx context.Context, store storage.PriceStore, samples []storage.PriceSample) error {
	for start := 0; start < len(samples); start += backfillBatchSize {
		end := start + backfillBatchSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := store.InsertSamples(ctx, samples[start:end]); err != nil {
			return err
		}
	}
	return nil
}
