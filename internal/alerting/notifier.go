package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/token"
)

// ErrDelivery wraps every failure to hand a message to the mail transport.
var ErrDelivery = errors.New("notification delivery failed")

// Spike describes a short-window price increase.
type Spike struct {
	Token     token.Token
	Current   decimal.Decimal
	Baseline  decimal.Decimal
	ChangePct decimal.Decimal
	Window    time.Duration
	At        time.Time
}

// TargetReached describes a user alert whose target price was met.
type TargetReached struct {
	AlertID uuid.UUID
	Token   token.Token
	Current decimal.Decimal
	Target  decimal.Decimal
	At      time.Time
}

// Notifier delivers alert notifications to a recipient.
type Notifier interface {
	NotifySpike(ctx context.Context, recipient string, spike Spike) error
	NotifyTarget(ctx context.Context, recipient string, target TargetReached) error
	SendTest(ctx context.Context, recipient string) error
}

// EmailNotifier renders notifications as HTML email and hands them to a Mailer.
type EmailNotifier struct {
	mailer Mailer
	logger zerolog.Logger
}

// NewEmailNotifier constructs an email notifier.
func NewEmailNotifier(mailer Mailer, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		mailer: mailer,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

// NotifySpike sends a price increase email.
func (n *EmailNotifier) NotifySpike(ctx context.Context, recipient string, spike Spike) error {
	msg, err := renderSpike(recipient, spike)
	if err != nil {
		return err
	}
	if err := n.send(ctx, msg); err != nil {
		return err
	}
	n.logger.Info().Str("to", recipient).
		Str("token", spike.Token.String()).
		Str("change_pct", spike.ChangePct.StringFixed(2)).
		Msg("spike alert sent")
	return nil
}

// NotifyTarget sends a target reached email.
func (n *EmailNotifier) NotifyTarget(ctx context.Context, recipient string, target TargetReached) error {
	msg, err := renderTarget(recipient, target)
	if err != nil {
		return err
	}
	if err := n.send(ctx, msg); err != nil {
		return err
	}
	n.logger.Info().Str("to", recipient).
		Str("token", target.Token.String()).
		Str("alert_id", target.AlertID.String()).
		Msg("target alert sent")
	return nil
}

// SendTest sends the fixed test message.
func (n *EmailNotifier) SendTest(ctx context.Context, recipient string) error {
	msg, err := renderTest(recipient)
	if err != nil {
		return err
	}
	if err := n.send(ctx, msg); err != nil {
		return err
	}
	n.logger.Info().Str("to", recipient).Msg("test email sent")
	return nil
}

func (n *EmailNotifier) send(ctx context.Context, msg Message) error {
	if n.mailer == nil {
		return fmt.Errorf("%w: mailer not configured", ErrDelivery)
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrDelivery) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

var _ Notifier = (*EmailNotifier)(nil)
