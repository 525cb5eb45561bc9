// Package smtp sends erasure requests through the user's own mailbox.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Mailer = (*Mailer)(nil)

// Config holds the submission settings. Host and Port may be left empty when
// the username belongs to a known provider.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// FromName is the display name on outgoing mail.
	FromName string
	// ReplyTo defaults to Username.
	ReplyTo string

	Timeout time.Duration
}

// sender is the part of *mail.Client the Mailer uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer implements driven.Mailer over SMTP submission.
type Mailer struct {
	cfg    Config
	client sender
	logger *slog.Logger
}

// NewMailer resolves the server for cfg and builds a client. Nothing is dialled
// until the first Send.
func NewMailer(cfg Config, logger *slog.Logger) (*Mailer, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("smtp username and password are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReplyTo == "" {
		cfg.ReplyTo = cfg.Username
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	policy := mail.TLSMandatory
	if cfg.Host == "" {
		p, ok := DetectProvider(cfg.Username)
		if !ok {
			return nil, fmt.Errorf("no smtp host configured and %q is not a known provider", cfg.Username)
		}
		cfg.Host, policy = p.Host, p.TLS
		if cfg.Port == 0 {
			cfg.Port = p.Port
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithTLSPortPolicy(policy),
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	logger.Info("smtp mailer configured", "host", cfg.Host, "port", cfg.Port, "from", cfg.Username)
	return &Mailer{cfg: cfg, client: client, logger: logger}, nil
}

// Send delivers body as plain text with an HTML alternative.
func (m *Mailer) Send(ctx context.Context, recipient, subject, body string) error {
	msg, err := m.message(recipient, subject, body)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient, err)
	}
	m.logger.Info("mail sent", "recipient", recipient)
	return nil
}

func (m *Mailer) message(recipient, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	var err error
	if m.cfg.FromName != "" {
		err = msg.FromFormat(m.cfg.FromName, m.cfg.Username)
	} else {
		err = msg.From(m.cfg.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(recipient); err != nil {
		return nil, fmt.Errorf("set recipient %q: %w", recipient, err)
	}
	if err := msg.ReplyTo(m.cfg.ReplyTo); err != nil {
		return nil, fmt.Errorf("set reply-to: %w", err)
	}

	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, body)
	if alt := renderHTML(body); alt != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, alt)
	}
	return msg, nil
}
