package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/config"
)

// FormNotifier posts url-encoded forms to a Textbelt-compatible SMS gateway:
//
//	POST {send_url}   phone=...&message=...&key=...  -> {"success":true,"textId":"..."}
//	GET  {status_url}/{textId}                       -> {"status":"DELIVERED"}
type FormNotifier struct {
	transport
	sendURL   string
	statusURL string
	apiKey    string
	client    *http.Client
}

func NewFormNotifier(cfg config.HTTPFormConfig, timeout time.Duration, bc config.BreakerConfig) *FormNotifier {
	return &FormNotifier{
		transport: newTransport("httpform", bc),
		sendURL:   strings.TrimSpace(cfg.SendURL),
		statusURL: strings.TrimRight(strings.TrimSpace(cfg.StatusURL), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		client:    &http.Client{Timeout: timeoutOrDefault(timeout)},
	}
}

type formSendResponse struct {
	Success        bool   `json:"success"`
	TextID         string `json:"textId"`
	QuotaRemaining int    `json:"quotaRemaining"`
	Error          string `json:"error"`
}

type formStatusResponse struct {
	Status string `json:"status"`
}

func (n *FormNotifier) Send(ctx context.Context, recipient, message string) (string, error) {
	if n.apiKey == "" {
		return "", ErrMissingCredentials
	}
	if err := n.acquire(ctx); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("phone", recipient)
	form.Set("message", message)
	form.Set("key", n.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.sendURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", n.settle(fmt.Errorf("%w: httpform: build request: %v", ErrTransportUnavailable, err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := n.client.Do(req)
	if err != nil {
		return "", n.settle(classifyNetErr("httpform", err))
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		return "", n.settle(fmt.Errorf("%w: httpform status=%d", ErrTransportUnavailable, res.StatusCode))
	}

	var out formSendResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return "", n.settle(fmt.Errorf("httpform status=%d: decode response: %w", res.StatusCode, err))
	}
	if !out.Success {
		reason := out.Error
		if reason == "" {
			reason = "gateway reported failure"
		}
		return "", n.settle(fmt.Errorf("httpform: %s", reason))
	}

	return out.TextID, n.settle(nil)
}

// CheckStatus asks the gateway for the delivery status of a sent text.
func (n *FormNotifier) CheckStatus(ctx context.Context, token string) (string, error) {
	if n.statusURL == "" {
		return "", fmt.Errorf("httpform: status url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.statusURL+"/"+url.PathEscape(token), nil)
	if err != nil {
		return "", fmt.Errorf("httpform: build status request: %w", err)
	}

	res, err := n.client.Do(req)
	if err != nil {
		return "", classifyNetErr("httpform", err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return "", fmt.Errorf("httpform status=%d", res.StatusCode)
	}

	var out formStatusResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("httpform: decode status: %w", err)
	}
	return out.Status, nil
}
