package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/config"
)

// TwilioNotifier sends SMS through the Twilio Programmable Messaging REST API.
type TwilioNotifier struct {
	transport
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

func NewTwilioNotifier(cfg config.TwilioConfig, timeout time.Duration, bc config.BreakerConfig) *TwilioNotifier {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}

	return &TwilioNotifier{
		transport:  newTransport("twilio", bc),
		baseURL:    baseURL,
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		from:       strings.TrimSpace(cfg.From),
		client:     &http.Client{Timeout: timeoutOrDefault(timeout)},
	}
}

type twilioMessage struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`

	// error responses
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (n *TwilioNotifier) Send(ctx context.Context, recipient, message string) (string, error) {
	if n.accountSID == "" || n.authToken == "" || n.from == "" {
		return "", ErrMissingCredentials
	}
	if err := n.acquire(ctx); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("To", recipient)
	form.Set("From", n.from)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", n.baseURL, url.PathEscape(n.accountSID))
	msg, err := n.do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", n.settle(err)
	}
	return msg.SID, n.settle(nil)
}

// CheckStatus fetches the message resource and returns its delivery status
// (queued, sent, delivered, undelivered, failed, ...).
func (n *TwilioNotifier) CheckStatus(ctx context.Context, token string) (string, error) {
	if n.accountSID == "" || n.authToken == "" {
		return "", ErrMissingCredentials
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages/%s.json",
		n.baseURL, url.PathEscape(n.accountSID), url.PathEscape(token))

	msg, err := n.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if msg.ErrorCode != nil && *msg.ErrorCode != 0 {
		return fmt.Sprintf("%s (error %d)", msg.Status, *msg.ErrorCode), nil
	}
	return msg.Status, nil
}

func (n *TwilioNotifier) do(ctx context.Context, method, endpoint string, body io.Reader) (twilioMessage, error) {
	var msg twilioMessage

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return msg, fmt.Errorf("%w: twilio: build request: %v", ErrTransportUnavailable, err)
	}
	req.SetBasicAuth(n.accountSID, n.authToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := n.client.Do(req)
	if err != nil {
		return msg, classifyNetErr("twilio", err)
	}
	defer res.Body.Close()

	// proxies in front of the API answer 5xx with HTML; the status alone decides
	if res.StatusCode >= 500 {
		return msg, fmt.Errorf("%w: twilio status=%d", ErrTransportUnavailable, res.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&msg); err != nil && !errors.Is(err, io.EOF) {
		return msg, fmt.Errorf("twilio status=%d: decode response: %w", res.StatusCode, err)
	}

	if res.StatusCode/100 != 2 {
		detail := msg.Message
		if detail == "" {
			detail = http.StatusText(res.StatusCode)
		}
		return msg, fmt.Errorf("twilio status=%d code=%d: %s", res.StatusCode, msg.Code, detail)
	}

	return msg, nil
}
