package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-price-tracker/internal/token"
)

func decimalPtr(raw string) *decimal.Decimal {
	d := decimal.RequireFromString(raw)
	return &d
}

func TestCreateAlertStoresPending(t *testing.T) {
	store := &memoryAlerts{}
	svc := NewAlerts(store, nil, zerolog.Nop())

	alert, err := svc.Create(context.Background(), AlertInput{
		Token:       "ethereum",
		TargetPrice: decimalPtr("2500.50"),
		Email:       " user@example.com ",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if alert.Triggered {
		t.Fatal("new alert must be pending")
	}
	if alert.Token != token.Ethereum || alert.Email != "user@example.com" {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if !alert.TargetPrice.Equal(decimal.RequireFromString("2500.5")) {
		t.Fatalf("unexpected target %s", alert.TargetPrice)
	}
	if len(store.alerts) != 1 || store.alerts[0].ID != alert.ID {
		t.Fatal("alert should be persisted")
	}
}

func TestCreateAlertRejectsInvalidInput(t *testing.T) {
	cases := map[string]AlertInput{
		"unsupported token": {Token: "dogecoin", TargetPrice: decimalPtr("1"), Email: "a@example.com"},
		"negative target":   {Token: "matic", TargetPrice: decimalPtr("-5"), Email: "a@example.com"},
		"missing target":    {Token: "matic", Email: "a@example.com"},
		"bad email":         {Token: "matic", TargetPrice: decimalPtr("1"), Email: "not-an-email"},
		"empty email":       {Token: "matic", TargetPrice: decimalPtr("1")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			store := &memoryAlerts{}
			_, err := NewAlerts(store, nil, zerolog.Nop()).Create(context.Background(), in)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if len(store.alerts) != 0 {
				t.Fatal("invalid alert must not be stored")
			}
		})
	}
}

func TestCreateAlertAcceptsZeroTarget(t *testing.T) {
	_, err := NewAlerts(&memoryAlerts{}, nil, zerolog.Nop()).Create(context.Background(), AlertInput{
		Token: "matic", TargetPrice: decimalPtr("0"), Email: "a@example.com",
	})
	if err != nil {
		t.Fatalf("zero target is allowed: %v", err)
	}
}

func TestPendingNewestFirst(t *testing.T) {
	store := &memoryAlerts{}
	svc := NewAlerts(store, nil, zerolog.Nop())
	first, _ := svc.Create(context.Background(), AlertInput{Token: "matic", TargetPrice: decimalPtr("1"), Email: "a@example.com"})
	second, _ := svc.Create(context.Background(), AlertInput{Token: "ethereum", TargetPrice: decimalPtr("1"), Email: "b@example.com"})
	done, _ := svc.Create(context.Background(), AlertInput{Token: "ethereum", TargetPrice: decimalPtr("2"), Email: "c@example.com"})
	if err := store.MarkAlertTriggered(context.Background(), done.ID); err != nil {
		t.Fatal(err)
	}

	pending, err := svc.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != second.ID || pending[1].ID != first.ID {
		t.Fatalf("unexpected pending order %+v", pending)
	}
}

func TestSendTestEmail(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewAlerts(&memoryAlerts{}, notifier, zerolog.Nop())

	if err := svc.SendTestEmail(context.Background(), "not-an-email"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := svc.SendTestEmail(context.Background(), "me@example.com"); err != nil {
		t.Fatalf("SendTestEmail: %v", err)
	}
	if len(notifier.tests) != 1 || notifier.tests[0] != "me@example.com" {
		t.Fatalf("unexpected sends %v", notifier.tests)
	}

	notifier.testErr = errBoom
	if err := svc.SendTestEmail(context.Background(), "me@example.com"); err != nil {
		t.Fatalf("delivery failures are swallowed, got %v", err)
	}
}
