package app

import (
	"context"
	"time"

	"crypto-price-tracker/internal/service"
)

// Sample runs one sampling tick now, stamped with the current time.
func (a *App) Sample(ctx context.Context, opts SampleOptions) error {
	if err := a.Config.PriceSource.Require(); err != nil {
		return err
	}

	store, closeStore, err := a.requireStore(ctx, "record samples")
	if err != nil {
		return err
	}
	defer closeStore()

	samplerOpts := service.SamplerOptions{
		Source:  a.newSource(),
		Store:   store,
		LockKey: a.Config.Scheduler.AdvisoryLockKey,
	}
	if !opts.SkipAlerts {
		samplerOpts.Evaluator = a.newEvaluator(store, a.newNotifier())
	}

	sampler := service.NewSampler(samplerOpts, a.Logger)
	return sampler.Tick(ctx, time.Now().UTC())
}
