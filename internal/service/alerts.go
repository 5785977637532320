package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/alerting"
	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
)

// AlertInput is an unvalidated request to create a target alert.
type AlertInput struct {
	Token       string
	TargetPrice *decimal.Decimal
	Email       string
}

// Alerts manages user target alerts and test emails.
type Alerts struct {
	store    storage.AlertStore
	notifier alerting.Notifier
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewAlerts constructs the alert service. notifier may be nil when mail is
// not configured; test emails are then only logged.
func NewAlerts(store storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Alerts {
	return &Alerts{
		store:    store,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger.With().Str("component", "alerts").Logger(),
	}
}

// Create validates in and stores a new untriggered alert.
func (a *Alerts) Create(ctx context.Context, in AlertInput) (storage.Alert, error) {
	var problems []error

	tok, err := token.Parse(in.Token)
	if err != nil {
		problems = append(problems, fmt.Errorf("%w: token must be 'ethereum' or 'matic'", ErrValidation))
	}

	switch {
	case in.TargetPrice == nil:
		problems = append(problems, fmt.Errorf("%w: targetPrice is required", ErrValidation))
	case in.TargetPrice.IsNegative():
		problems = append(problems, fmt.Errorf("%w: targetPrice must not be negative", ErrValidation))
	}

	email := strings.TrimSpace(in.Email)
	if err := a.checkEmail(email); err != nil {
		problems = append(problems, err)
	}

	if len(problems) > 0 {
		return storage.Alert{}, errors.Join(problems...)
	}

	alert, err := a.store.InsertAlert(ctx, storage.Alert{
		ID:          uuid.New(),
		Token:       tok,
		TargetPrice: *in.TargetPrice,
		Email:       email,
	})
	if err != nil {
		return storage.Alert{}, err
	}
	a.logger.Info().
		Str("alert_id", alert.ID.String()).
		Str("token", alert.Token.String()).
		Str("target", alert.TargetPrice.String()).
		Msg("alert created")
	return alert, nil
}

// Pending lists untriggered alerts, newest first.
func (a *Alerts) Pending(ctx context.Context) ([]storage.Alert, error) {
	alerts, err := a.store.ListPendingAlerts(ctx)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(alerts)-1; i < j; i, j = i+1, j-1 {
		alerts[i], alerts[j] = alerts[j], alerts[i]
	}
	return alerts, nil
}

// SendTestEmail sends the fixed test message to recipient. Only an invalid
// address is reported; delivery failures are logged.
func (a *Alerts) SendTestEmail(ctx context.Context, recipient string) error {
	recipient = strings.TrimSpace(recipient)
	if err := a.checkEmail(recipient); err != nil {
		return err
	}
	if a.notifier == nil {
		a.logger.Warn().Str("to", recipient).Msg("mail not configured; test email not sent")
		return nil
	}
	if err := a.notifier.SendTest(ctx, recipient); err != nil {
		a.logger.Error().Err(err).Str("to", recipient).Msg("test email failed")
	}
	return nil
}

func (a *Alerts) checkEmail(email string) error {
	if err := a.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: email must be a valid address", ErrValidation)
	}
	return nil
}
