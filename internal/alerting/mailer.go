package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	mail "github.com/wneessen/go-mail"
)

// Message is a rendered email ready for transport.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Mailer hands a message to a mail transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPOptions parameterise the SMTP transport.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer delivers messages through an authenticated SMTP relay.
type SMTPMailer struct {
	opts   SMTPOptions
	logger zerolog.Logger
}

// NewSMTPMailer constructs an SMTP mailer.
func NewSMTPMailer(opts SMTPOptions, logger zerolog.Logger) *SMTPMailer {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &SMTPMailer{
		opts:   opts,
		logger: logger.With().Str("component", "smtp_mailer").Logger(),
	}
}

// Send dials the relay, delivers msg and disconnects.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	email := mail.NewMsg()
	if err := email.From(m.opts.From); err != nil {
		return fmt.Errorf("%w: invalid sender %q: %v", ErrDelivery, m.opts.From, err)
	}
	if err := email.To(msg.To); err != nil {
		return fmt.Errorf("%w: invalid recipient %q: %v", ErrDelivery, msg.To, err)
	}
	email.Subject(msg.Subject)
	email.SetBodyString(mail.TypeTextHTML, msg.HTMLBody)

	client, err := mail.NewClient(m.opts.Host, m.clientOptions()...)
	if err != nil {
		return fmt.Errorf("%w: create smtp client: %v", ErrDelivery, err)
	}

	if err := client.DialAndSendWithContext(ctx, email); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	m.logger.Debug().Str("to", msg.To).Str("subject", msg.Subject).Msg("message handed to smtp relay")
	return nil
}

func (m *SMTPMailer) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(m.opts.Port),
		mail.WithTimeout(m.opts.Timeout),
	}
	if m.opts.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.opts.Username),
			mail.WithPassword(m.opts.Password),
		)
	}
	switch m.opts.Port {
	case 465:
		opts = append(opts, mail.WithSSL())
	case 25:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	return opts
}

var _ Mailer = (*SMTPMailer)(nil)
