package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/config"
	"github.com/wneessen/go-mail"
)

// SMTPNotifier relays messages through an SMTP server. Recipients are
// carrier email-to-SMS addresses (5551234567@vtext.com) or plain mailboxes.
type SMTPNotifier struct {
	transport
	config  config.SMTPConfig
	timeout time.Duration
}

func NewSMTPNotifier(cfg config.SMTPConfig, timeout time.Duration, bc config.BreakerConfig) *SMTPNotifier {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{
		transport: newTransport("smtp", bc),
		config:    cfg,
		timeout:   timeoutOrDefault(timeout),
	}
}

// Send delivers message as a plain-text mail with an empty subject, which
// carrier gateways forward as a bare SMS. The returned token is the
// Message-ID header.
func (n *SMTPNotifier) Send(ctx context.Context, recipient, message string) (string, error) {
	if strings.TrimSpace(n.config.Username) == "" || n.config.Password == "" {
		return "", ErrMissingCredentials
	}

	m := mail.NewMsg()
	if err := m.FromFormat(n.config.FromName, n.config.Username); err != nil {
		return "", fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(recipient); err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", recipient, err)
	}
	m.Subject("")
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, message)

	if err := n.acquire(ctx); err != nil {
		return "", err
	}

	c, err := mail.NewClient(n.config.Host, n.clientOptions()...)
	if err != nil {
		return "", n.settle(fmt.Errorf("%w: smtp: create client: %v", ErrTransportUnavailable, err))
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return "", n.settle(classifySendErr(err))
	}

	return m.GetMessageID(), n.settle(nil)
}

func (n *SMTPNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(n.config.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.config.Username),
		mail.WithPassword(n.config.Password),
		mail.WithTimeout(n.timeout),
	}
	switch n.config.Encryption {
	case "ssl_tls":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	return opts
}

// classifySendErr: once a session exists the server answers per message, so
// a *mail.SendError is a per-recipient failure; anything earlier (dial, TLS,
// auth) means the relay is unusable.
func classifySendErr(err error) error {
	var se *mail.SendError
	if errors.As(err, &se) {
		return fmt.Errorf("smtp: %w", err)
	}
	return classifyNetErr("smtp", err)
}
