package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/token"
)

type recordingMailer struct {
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestNotifySpikeRendersEmail(t *testing.T) {
	mailer := &recordingMailer{}
	notifier := NewEmailNotifier(mailer, testLogger())

	spike := Spike{
		Token:     token.Matic,
		Current:   decimal.RequireFromString("1.04"),
		Baseline:  decimal.RequireFromString("1"),
		ChangePct: decimal.RequireFromString("4"),
		Window:    time.Hour,
		At:        time.Now(),
	}
	if err := notifier.NotifySpike(context.Background(), "ops@example.com", spike); err != nil {
		t.Fatalf("NotifySpike should succeed: %v", err)
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.To != "ops@example.com" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
	if msg.Subject != "Price Alert: MATIC increased by 4.00%" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"$1.04", "$1.00", "4.00%", "1 hour"} {
		if !strings.Contains(msg.HTMLBody, want) {
			t.Fatalf("body should contain %q: %s", want, msg.HTMLBody)
		}
	}
}

func TestNotifyTargetRendersEmail(t *testing.T) {
	mailer := &recordingMailer{}
	notifier := NewEmailNotifier(mailer, testLogger())

	target := TargetReached{
		AlertID: uuid.New(),
		Token:   token.Ethereum,
		Current: decimal.RequireFromString("2105.5"),
		Target:  decimal.RequireFromString("2100"),
	}
	if err := notifier.NotifyTarget(context.Background(), "user@example.com", target); err != nil {
		t.Fatalf("NotifyTarget should succeed: %v", err)
	}

	msg := mailer.sent[0]
	if !strings.Contains(msg.Subject, "ETH has reached your target price") {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.HTMLBody, "$2105.50") || !strings.Contains(msg.HTMLBody, "$2100.00") {
		t.Fatalf("body should contain both prices: %s", msg.HTMLBody)
	}
}

func TestSendTest(t *testing.T) {
	mailer := &recordingMailer{}
	notifier := NewEmailNotifier(mailer, testLogger())

	if err := notifier.SendTest(context.Background(), "user@example.com"); err != nil {
		t.Fatalf("SendTest should succeed: %v", err)
	}
	if mailer.sent[0].Subject != "Crypto Price Tracker: Test Email" {
		t.Fatalf("unexpected subject %q", mailer.sent[0].Subject)
	}
}

func TestDeliveryErrorsAreWrapped(t *testing.T) {
	notifier := NewEmailNotifier(&recordingMailer{err: errors.New("connection refused")}, testLogger())
	err := notifier.SendTest(context.Background(), "user@example.com")
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("transport errors should wrap ErrDelivery, got %v", err)
	}

	err = NewEmailNotifier(nil, testLogger()).SendTest(context.Background(), "user@example.com")
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("missing mailer should wrap ErrDelivery, got %v", err)
	}
}

func TestSMTPMailerRejectsBadRecipient(t *testing.T) {
	mailer := NewSMTPMailer(SMTPOptions{Host: "localhost", From: "bot@example.com"}, testLogger())
	err := mailer.Send(context.Background(), Message{To: "not an address", Subject: "x", HTMLBody: "x"})
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("bad recipient should fail before dialing, got %v", err)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
