package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"crypto-price-tracker/internal/storage"
	"crypto-price-tracker/internal/token"
)

// Show prints recent samples, optionally for a single token.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx, "show samples")
	if err != nil {
		return err
	}
	defer closeStore()

	var samples []storage.PriceSample
	if opts.Token != "" {
		tok, err := token.Parse(opts.Token)
		if err != nil {
			return err
		}
		samples, err = store.ListTokenSamples(ctx, tok, opts.Limit)
		if err != nil {
			return err
		}
	} else {
		samples, err = store.ListRecentSamples(ctx, opts.Limit)
		if err != nil {
			return err
		}
	}

	return writeSamplesTable(os.Stdout, samples)
}

// ListAlerts prints pending target alerts, newest first.
func (a *App) ListAlerts(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx, "list alerts")
	if err != nil {
		return err
	}
	defer closeStore()

	alerts, err := store.ListPendingAlerts(ctx)
	if err != nil {
		return err
	}
	return writeAlertsTable(os.Stdout, alerts)
}

// SendTestEmail delivers the fixed test message and reports failures.
func (a *App) SendTestEmail(ctx context.Context, recipient string) error {
	if err := a.Config.Mail.Require(); err != nil {
		return fmt.Errorf("mail not configured: %w", err)
	}
	if recipient == "" {
		recipient = a.Config.Alerting.DefaultRecipient
	}
	notifier := a.newNotifier()
	if err := notifier.SendTest(ctx, recipient); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "test email sent to %s\n", recipient)
	return nil
}

func writeSamplesTable(out io.Writer, samples []storage.PriceSample) error {
	if len(samples) == 0 {
		fmt.Fprintln(out, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tToken\tPrice (USD)")
	for _, sample := range samples {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			sample.Timestamp.UTC().Format(time.RFC3339),
			sample.Token.Symbol(),
			sample.Price.StringFixed(4),
		)
	}
	return writer.Flush()
}

// writeAlertsTable expects alerts oldest first, as the store returns them.
func writeAlertsTable(out io.Writer, alerts []storage.Alert) error {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no pending alerts")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tID\tToken\tTarget (USD)\tEmail")
	for i := len(alerts) - 1; i >= 0; i-- {
		alert := alerts[i]
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.ID,
			alert.Token.Symbol(),
			alert.TargetPrice.StringFixed(2),
			sanitizeInline(alert.Email),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
