package notifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/payment-alerts/internal/config"
	"github.com/jmehdipour/payment-alerts/internal/model"
	"github.com/jmehdipour/payment-alerts/internal/notifier"
)

var breaker = config.BreakerConfig{FailThreshold: 2, OpenFor: time.Minute}

func TestNew_SelectsTransportByKind(t *testing.T) {
	cases := map[model.NotifierKind]string{
		model.NotifierSMTP:     "smtp",
		model.NotifierTwilio:   "twilio",
		model.NotifierHTTPForm: "httpform",
	}
	for kind, name := range cases {
		n, err := notifier.New(config.NotifierConfig{Kind: kind})
		require.NoError(t, err)
		assert.Equal(t, name, n.Name())
		assert.True(t, n.Ready())
	}

	_, err := notifier.New(config.NotifierConfig{Kind: "pager"})
	assert.Error(t, err)
}

func TestMissingCredentialsFailEverySend(t *testing.T) {
	ctx := context.Background()
	for _, n := range []notifier.Notifier{
		notifier.NewSMTPNotifier(config.SMTPConfig{Host: "localhost"}, time.Second, breaker),
		notifier.NewTwilioNotifier(config.TwilioConfig{}, time.Second, breaker),
		notifier.NewFormNotifier(config.HTTPFormConfig{SendURL: "http://localhost"}, time.Second, breaker),
	} {
		_, err := n.Send(ctx, "+15551234567", "hi")
		assert.ErrorIs(t, err, notifier.ErrMissingCredentials, n.Name())
		assert.NotErrorIs(t, err, notifier.ErrTransportUnavailable, n.Name())
		assert.True(t, n.Ready(), "credential gaps do not trip the breaker")
	}
}

func TestTwilio_SendAndCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/2010-04-01/Accounts/AC123/Messages.json":
			require.NoError(t, r.ParseForm())
			if r.PostForm.Get("To") == "+15550000000" {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{"code": 21211, "message": "Invalid 'To' Phone Number"})
				return
			}
			assert.Equal(t, "+15559990000", r.PostForm.Get("From"))
			assert.Equal(t, "Refund rf_1 created for $1.00.", r.PostForm.Get("Body"))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"sid": "SM42", "status": "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/2010-04-01/Accounts/AC123/Messages/SM42.json":
			_ = json.NewEncoder(w).Encode(map[string]any{"sid": "SM42", "status": "delivered"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	n := notifier.NewTwilioNotifier(config.TwilioConfig{
		BaseURL:    srv.URL,
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+15559990000",
	}, time.Second, breaker)

	ctx := context.Background()
	token, err := n.Send(ctx, "+15551234567", "Refund rf_1 created for $1.00.")
	require.NoError(t, err)
	assert.Equal(t, "SM42", token)

	status, err := n.CheckStatus(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "delivered", status)

	_, err = n.Send(ctx, "+15550000000", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid 'To' Phone Number")
	assert.NotErrorIs(t, err, notifier.ErrTransportUnavailable)
	assert.True(t, n.Ready(), "a rejected recipient keeps the breaker closed")
}

func TestTwilio_ServerErrorsTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := notifier.NewTwilioNotifier(config.TwilioConfig{
		BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "t", From: "+15559990000",
	}, time.Second, breaker)

	for i := 0; i < 2; i++ {
		_, err := n.Send(context.Background(), "+15551234567", "x")
		assert.ErrorIs(t, err, notifier.ErrTransportUnavailable)
	}
	assert.False(t, n.Ready())

	_, err := n.Send(context.Background(), "+15551234567", "x")
	assert.ErrorIs(t, err, notifier.ErrTransportUnavailable)
}

func TestTwilio_HTMLBadGatewayIsTransportUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><body><h1>502 Bad Gateway</h1></body></html>"))
	}))
	defer srv.Close()

	n := notifier.NewTwilioNotifier(config.TwilioConfig{
		BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "t", From: "+15559990000",
	}, time.Second, breaker)

	for i := 0; i < 2; i++ {
		_, err := n.Send(context.Background(), "+15551234567", "x")
		require.ErrorIs(t, err, notifier.ErrTransportUnavailable)
		assert.Contains(t, err.Error(), "status=502")
	}
	assert.False(t, n.Ready(), "proxy errors trip the breaker")
}

func TestForm_SendReportsGatewayOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			assert.Equal(t, "/status/tx-7", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "DELIVERED"})
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "k3y", r.PostForm.Get("key"))
		if r.PostForm.Get("phone") == "+15550000000" {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Out of quota"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "textId": "tx-7", "quotaRemaining": 40})
	}))
	defer srv.Close()

	n := notifier.NewFormNotifier(config.HTTPFormConfig{
		SendURL:   srv.URL + "/text",
		StatusURL: srv.URL + "/status/",
		APIKey:    "k3y",
	}, time.Second, breaker)

	ctx := context.Background()
	token, err := n.Send(ctx, "+15551234567", "hello")
	require.NoError(t, err)
	assert.Equal(t, "tx-7", token)

	status, err := n.CheckStatus(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "DELIVERED", status)

	_, err = n.Send(ctx, "+15550000000", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Out of quota")
	assert.NotErrorIs(t, err, notifier.ErrTransportUnavailable)
}

func TestForm_TimeoutIsPerRecipientFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	n := notifier.NewFormNotifier(config.HTTPFormConfig{SendURL: srv.URL, APIKey: "k"}, 50*time.Millisecond, breaker)

	_, err := n.Send(context.Background(), "+15551234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.NotErrorIs(t, err, notifier.ErrTransportUnavailable)
}

func TestUnreachableBackendIsTransportUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	n := notifier.NewFormNotifier(config.HTTPFormConfig{SendURL: addr, APIKey: "k"}, time.Second, breaker)
	_, err := n.Send(context.Background(), "+15551234567", "hello")
	assert.ErrorIs(t, err, notifier.ErrTransportUnavailable)
}

func TestSMTP_UnreachableRelayIsTransportUnavailable(t *testing.T) {
	n := notifier.NewSMTPNotifier(config.SMTPConfig{
		Host:       "127.0.0.1",
		Port:       1,
		Username:   "alerts@example.com",
		Password:   "pw",
		FromName:   "Payment Alert",
		Encryption: "none",
	}, time.Second, breaker)

	_, err := n.Send(context.Background(), "5551234567@vtext.com", "hello")
	assert.ErrorIs(t, err, notifier.ErrTransportUnavailable)
}

func TestSMTP_InvalidRecipientIsPerRecipientFailure(t *testing.T) {
	n := notifier.NewSMTPNotifier(config.SMTPConfig{
		Host: "127.0.0.1", Port: 1, Username: "alerts@example.com", Password: "pw",
	}, time.Second, breaker)

	_, err := n.Send(context.Background(), "not an address", "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, notifier.ErrTransportUnavailable)
}
