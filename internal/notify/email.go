package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"pulseflow/pkg/constraints"

	"github.com/wneessen/go-mail"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	// TLS is one of "mandatory", "opportunistic" or "none".
	TLS string
}

// EmailSender delivers HTML mail over SMTP.
type EmailSender struct {
	cfg EmailConfig
}

func NewEmailSender(cfg EmailConfig) *EmailSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &EmailSender{cfg: cfg}
}

func (e *EmailSender) Channel() string { return constraints.ChannelEmail }

func (e *EmailSender) SupportsInline() bool { return true }

func (e *EmailSender) Validate() error {
	if e.cfg.Host == "" {
		return errors.New("email: smtp host is required")
	}
	if e.cfg.From == "" {
		return errors.New("email: from address is required")
	}
	return nil
}

func (e *EmailSender) Send(ctx context.Context, msg Message) error {
	m, err := e.buildMessage(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(e.cfg.Host, e.clientOptions()...)
	if err != nil {
		return fmt.Errorf("email: create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}

func (e *EmailSender) buildMessage(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(e.cfg.From); err != nil {
		return nil, fmt.Errorf("email: invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("email: invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.Body)

	for _, a := range msg.Inline {
		if _, err := os.Stat(a.Path); err != nil {
			// a missing logo should not block the alert
			continue
		}
		m.EmbedFile(a.Path, mail.WithFileContentID(a.ContentID))
	}
	return m, nil
}

func (e *EmailSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithTimeout(e.cfg.Timeout),
	}
	switch e.cfg.TLS {
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if e.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.Username),
			mail.WithPassword(e.cfg.Password),
		)
	}
	return opts
}
