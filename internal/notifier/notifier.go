// Package notifier delivers one text message to one recipient over one of the
// supported transports: an SMTP relay addressed to carrier email-to-SMS
// gateways, the Twilio messaging API, or a Textbelt-style HTTP form gateway.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/config"
	"github.com/jmehdipour/payment-alerts/internal/model"
)

var (
	// ErrTransportUnavailable means the backend could not be reached at all;
	// no per-recipient outcome exists for the attempt.
	ErrTransportUnavailable = errors.New("notification transport unavailable")
	// ErrMissingCredentials is returned for every send when the transport was
	// configured without credentials.
	ErrMissingCredentials = errors.New("notifier credentials not configured")
)

const defaultTimeout = 10 * time.Second

// Notifier sends a single message to a single recipient. Implementations are
// safe for concurrent use.
type Notifier interface {
	Name() string
	Ready() bool
	// Send returns an optional tracking token on success.
	Send(ctx context.Context, recipient, message string) (string, error)
}

// New builds the notifier selected by cfg.Kind.
func New(cfg config.NotifierConfig) (Notifier, error) {
	switch cfg.Kind {
	case model.NotifierSMTP, "":
		return NewSMTPNotifier(cfg.SMTP, cfg.Timeout, cfg.Breaker), nil
	case model.NotifierTwilio:
		return NewTwilioNotifier(cfg.Twilio, cfg.Timeout, cfg.Breaker), nil
	case model.NotifierHTTPForm:
		return NewFormNotifier(cfg.HTTPForm, cfg.Timeout, cfg.Breaker), nil
	default:
		return nil, fmt.Errorf("unknown notifier kind %q", cfg.Kind)
	}
}

// transport holds what every backend shares: its name and circuit breaker.
type transport struct {
	name string
	br   *MicroBreaker
}

func newTransport(name string, bc config.BreakerConfig) transport {
	return transport{name: name, br: NewMicroBreaker(name, bc.FailThreshold, bc.OpenFor)}
}

func (t *transport) Name() string { return t.name }
func (t *transport) Ready() bool  { return t.br.Ready() }

func (t *transport) acquire(ctx context.Context) error {
	if !t.br.Acquire(ctx) {
		return fmt.Errorf("%w: %s circuit open", ErrTransportUnavailable, t.name)
	}
	return nil
}

// settle feeds the outcome of an acquired attempt back into the breaker.
// Only transport faults count against it; a rejected recipient proves the
// backend is reachable.
func (t *transport) settle(err error) error {
	if err != nil && (errors.Is(err, ErrTransportUnavailable) || isTimeout(err)) {
		t.br.OnFailure()
	} else {
		t.br.OnSuccess()
	}
	return err
}

// classifyNetErr separates timeouts, which are reported per recipient, from
// connection-level faults, which mean the backend is unreachable.
func classifyNetErr(name string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%s: send timed out: %w", name, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrTransportUnavailable, name, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}
