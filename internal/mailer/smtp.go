// Package mailer delivers exported workbooks over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/JonMunkholm/seace/internal/config"
	"github.com/JonMunkholm/seace/internal/core"
)

// ErrNoRecipient is returned when a message has no To and EMAIL_RECIPIENT is unset.
var ErrNoRecipient = errors.New("no recipient: EMAIL_RECIPIENT is not set")

// sendFunc delivers a built message with the given settings.
type sendFunc func(ctx context.Context, cfg *config.MailConfig, m *mail.Msg) error

// SMTPTransport implements core.Transport. Settings are read from the
// environment on every send.
type SMTPTransport struct {
	load func() (*config.MailConfig, error)
	send sendFunc
}

// NewSMTPTransport returns a transport backed by config.LoadMail.
func NewSMTPTransport() *SMTPTransport {
	return &SMTPTransport{load: config.LoadMail, send: dialAndSend}
}

// Send builds and delivers msg. An empty msg.To uses EMAIL_RECIPIENT. A
// recipient that cannot be addressed is a core.InvalidRecipientError.
func (t *SMTPTransport) Send(ctx context.Context, msg core.Message) (core.Receipt, error) {
	cfg, err := t.load()
	if err != nil {
		return core.Receipt{}, err
	}

	to := strings.TrimSpace(msg.To)
	if to == "" {
		to = strings.TrimSpace(cfg.Recipient)
		if to == "" {
			return core.Receipt{}, ErrNoRecipient
		}
		if !core.PlausibleAddress(to) {
			return core.Receipt{}, &core.Error{
				Kind: core.InvalidRecipientError,
				Op:   "send mail",
				Err:  fmt.Errorf("EMAIL_RECIPIENT %q has no @", to),
			}
		}
	}

	m, err := buildMessage(cfg.Sender(), to, msg)
	if err != nil {
		return core.Receipt{}, err
	}

	if err := t.send(ctx, cfg, m); err != nil {
		return core.Receipt{}, fmt.Errorf("smtp %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return core.Receipt{To: to}, nil
}

func buildMessage(from, to string, msg core.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := m.To(to); err != nil {
		return nil, &core.Error{
			Kind: core.InvalidRecipientError,
			Op:   "send mail",
			Err:  fmt.Errorf("invalid recipient %q: %w", to, err),
		}
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if a := msg.Attachment; len(a.Data) > 0 {
		m.AttachReadSeeker(a.Name, bytes.NewReader(a.Data),
			mail.WithFileContentType(mail.ContentType(a.ContentType)))
	}
	return m, nil
}

func dialAndSend(ctx context.Context, cfg *config.MailConfig, m *mail.Msg) error {
	c, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.User),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(tlsPolicy(cfg.TLS)),
		mail.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	return c.DialAndSendWithContext(ctx, m)
}

func tlsPolicy(s string) mail.TLSPolicy {
	switch strings.ToLower(s) {
	case "opportunistic":
		return mail.TLSOpportunistic
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSMandatory
	}
}
