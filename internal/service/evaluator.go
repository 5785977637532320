package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/alerting"
	"crypto-price-tracker/internal/metrics"
	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
)

const (
	kindSpike  = "spike"
	kindTarget = "target"
)

var hundred = decimal.NewFromInt(100)

// EvaluatorOptions configure spike detection.
type EvaluatorOptions struct {
	ThresholdPct     decimal.Decimal
	Window           time.Duration
	DefaultRecipient string
}

// AlertEvaluator runs the spike pass and the target pass for a tick.
//
// Spike notifications are best effort: a failed send is only logged and the
// condition is simply seen again on the next tick. Target alerts are marked
// triggered only after a successful send, so a failed send is retried on the
// next tick.
type AlertEvaluator struct {
	prices   storage.PriceStore
	alerts   storage.AlertStore
	notifier alerting.Notifier
	opts     EvaluatorOptions
	logger   zerolog.Logger
}

// NewAlertEvaluator constructs the evaluator.
func NewAlertEvaluator(prices storage.PriceStore, alerts storage.AlertStore, notifier alerting.Notifier, opts EvaluatorOptions, logger zerolog.Logger) *AlertEvaluator {
	if opts.Window <= 0 {
		opts.Window = time.Hour
	}
	return &AlertEvaluator{
		prices:   prices,
		alerts:   alerts,
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "alert_evaluator").Logger(),
	}
}

// Evaluate runs both passes. Only a failure to load pending alerts is
// returned; per token and per alert failures are logged.
func (e *AlertEvaluator) Evaluate(ctx context.Context, now time.Time) error {
	e.checkSpikes(ctx, now)
	return e.checkTargets(ctx, now)
}

func (e *AlertEvaluator) checkSpikes(ctx context.Context, now time.Time) {
	if e.notifier == nil || e.opts.DefaultRecipient == "" {
		e.logger.Debug().Msg("spike notifications disabled")
		return
	}
	for _, tok := range token.All() {
		if err := e.checkSpike(ctx, tok, now); err != nil {
			e.logger.Error().Err(err).Str("token", tok.String()).Msg("spike check failed")
		}
	}
}

func (e *AlertEvaluator) checkSpike(ctx context.Context, tok token.Token, now time.Time) error {
	current, err := e.prices.LatestSample(ctx, tok)
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Warn().Str("token", tok.String()).Msg("no current price found")
		return nil
	}
	if err != nil {
		return err
	}

	cutoff := now.Add(-e.opts.Window)
	baseline, err := e.prices.LatestSampleAtOrBefore(ctx, tok, cutoff)
	if errors.Is(err, storage.ErrNotFound) {
		e.logger.Warn().Str("token", tok.String()).Time("cutoff", cutoff).Msg("not enough history for spike check")
		return nil
	}
	if err != nil {
		return err
	}

	change, ok := PercentChange(baseline.Price, current.Price)
	if !ok {
		e.logger.Warn().Str("token", tok.String()).Msg("baseline price is zero; skipping spike check")
		return nil
	}

	if !change.GreaterThan(e.opts.ThresholdPct) {
		e.logger.Info().Str("token", tok.String()).
			Str("change_pct", change.StringFixed(2)).
			Msg("price change below alert threshold")
		return nil
	}

	e.logger.Info().Str("token", tok.String()).
		Str("change_pct", change.StringFixed(2)).
		Msg("price increase above threshold; sending alert")

	spike := alerting.Spike{
		Token:     tok,
		Current:   current.Price,
		Baseline:  baseline.Price,
		ChangePct: change,
		Window:    e.opts.Window,
		At:        now,
	}
	if err := e.notifier.NotifySpike(ctx, e.opts.DefaultRecipient, spike); err != nil {
		metrics.ObserveNotification(kindSpike, metrics.NotificationFailed)
		return fmt.Errorf("send spike alert: %w", err)
	}
	metrics.ObserveNotification(kindSpike, metrics.NotificationSent)
	return nil
}

func (e *AlertEvaluator) checkTargets(ctx context.Context, now time.Time) error {
	if e.alerts == nil {
		return nil
	}

	pending, err := e.alerts.ListPendingAlerts(ctx)
	if err != nil {
		return fmt.Errorf("load pending alerts: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	byToken := make(map[token.Token][]storage.Alert)
	for _, alert := range pending {
		if !alert.Token.Valid() {
			e.logger.Warn().Str("alert_id", alert.ID.String()).Str("token", alert.Token.String()).Msg("ignoring alert for untracked token")
			continue
		}
		byToken[alert.Token] = append(byToken[alert.Token], alert)
	}

	for _, tok := range token.All() {
		group := byToken[tok]
		if len(group) == 0 {
			continue
		}

		current, err := e.prices.LatestSample(ctx, tok)
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn().Str("token", tok.String()).Int("pending", len(group)).Msg("no price to evaluate alerts against")
			continue
		}
		if err != nil {
			e.logger.Error().Err(err).Str("token", tok.String()).Msg("load current price failed")
			continue
		}

		for _, alert := range group {
			e.checkTarget(ctx, alert, current.Price, now)
		}
	}
	return nil
}

func (e *AlertEvaluator) checkTarget(ctx context.Context, alert storage.Alert, current decimal.Decimal, now time.Time) {
	if current.LessThan(alert.TargetPrice) {
		return
	}

	logger := e.logger.With().
		Str("alert_id", alert.ID.String()).
		Str("token", alert.Token.String()).
		Str("target", alert.TargetPrice.String()).
		Str("current", current.String()).
		Logger()

	if e.notifier == nil {
		logger.Warn().Msg("target reached but no notifier configured")
		return
	}

	note := alerting.TargetReached{
		AlertID: alert.ID,
		Token:   alert.Token,
		Current: current,
		Target:  alert.TargetPrice,
		At:      now,
	}
	if err := e.notifier.NotifyTarget(ctx, alert.Email, note); err != nil {
		metrics.ObserveNotification(kindTarget, metrics.NotificationFailed)
		logger.Error().Err(err).Msg("target alert delivery failed; alert stays pending")
		return
	}
	metrics.ObserveNotification(kindTarget, metrics.NotificationSent)

	if err := e.alerts.MarkAlertTriggered(ctx, alert.ID); err != nil {
		logger.Error().Err(err).Msg("mark alert triggered failed")
		return
	}
	logger.Info().Msg("target alert triggered")
}

// PercentChange returns (current - baseline) / baseline * 100. It reports
// false when baseline is zero.
func PercentChange(baseline, current decimal.Decimal) (decimal.Decimal, bool) {
	if baseline.IsZero() {
		return decimal.Zero, false
	}
	return current.Sub(baseline).Div(baseline).Mul(hundred), true
}
