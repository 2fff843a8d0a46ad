package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PORT", "")
	for _, legacy := range legacyEnv {
		t.Setenv(legacy, "")
	}
	t.Setenv("ALERTS_RECIPIENTS", "")
	t.Setenv("ALERTS_NOTIFIER_KIND", "")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.HTTP.Addr)
	assert.Equal(t, "/webhook", cfg.HTTP.WebhookPath)
	assert.EqualValues(t, 1<<20, cfg.HTTP.MaxBodyBytes)
	assert.Equal(t, model.NotifierSMTP, cfg.Notifier.Kind)
	assert.Equal(t, 10*time.Second, cfg.Notifier.Timeout)
	assert.Equal(t, "smtp.gmail.com", cfg.Notifier.SMTP.Host)
	assert.Equal(t, 587, cfg.Notifier.SMTP.Port)
	assert.Equal(t, "square_webhook_log.txt", cfg.EventLog.Path)
	assert.Equal(t, "inline", cfg.StatusCheck.Mode)
	assert.Equal(t, 4, cfg.Dispatcher.Concurrency)
	assert.Empty(t, cfg.Recipients)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
notifier:
  kind: twilio
  twilio:
    account_sid: AC123
recipients:
  - " (555) 010-9999 "
  - ""
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.NotifierTwilio, cfg.Notifier.Kind)
	assert.Equal(t, "AC123", cfg.Notifier.Twilio.AccountSID)
	assert.Equal(t, "https://api.twilio.com", cfg.Notifier.Twilio.BaseURL)
	assert.Equal(t, []string{"+15550109999"}, cfg.Recipients)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALERTS_NOTIFIER_KIND", "textbelt")
	t.Setenv("ALERTS_DISPATCHER_CONCURRENCY", "9")
	t.Setenv("ALERTS_HTTP_ADDR", ":8081")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, model.NotifierHTTPForm, cfg.Notifier.Kind)
	assert.Equal(t, 9, cfg.Dispatcher.Concurrency)
	assert.Equal(t, ":8081", cfg.HTTP.Addr)
}

func TestLoad_LegacyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMS_RECIPIENTS", "5551234567@vtext.com, ,5559876543@txt.att.net ")
	t.Setenv("SMTP_USER", "alerts@example.com")
	t.Setenv("SMTP_PASS", "app-password")
	t.Setenv("PORT", "8080")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"5551234567@vtext.com", "5559876543@txt.att.net"}, cfg.Recipients)
	assert.Equal(t, "alerts@example.com", cfg.Notifier.SMTP.Username)
	assert.Equal(t, "app-password", cfg.Notifier.SMTP.Password)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Empty(t, cfg.Warnings())
}

func TestLoad_PrefixedEnvBeatsLegacy(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMTP_USER", "old@example.com")
	t.Setenv("ALERTS_NOTIFIER_SMTP_USERNAME", "new@example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", cfg.Notifier.SMTP.Username)
}

func TestLoad_UnknownNotifierKind(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALERTS_NOTIFIER_KIND", "pigeon")

	_, err := Load("")
	assert.ErrorContains(t, err, "unknown notifier kind")
}

func TestWarnings(t *testing.T) {
	cfg := Config{Notifier: NotifierConfig{Kind: model.NotifierTwilio}}
	cfg.Notifier.Twilio.AccountSID = "AC1"

	w := cfg.Warnings()
	require.Len(t, w, 3)
	assert.Contains(t, w[0], "no recipients")
	assert.Contains(t, w[1], "twilio.auth_token")
	assert.Contains(t, w[2], "twilio.from")
}

func TestNormalizeRecipients(t *testing.T) {
	got := NormalizeRecipients([]string{"a@x.com, b@y.com", "  ", "c@z.com"}, model.NotifierSMTP)
	assert.Equal(t, []string{"a@x.com", "b@y.com", "c@z.com"}, got)

	got = NormalizeRecipients([]string{"555-123-4567,+44 20 7946 0958"}, model.NotifierHTTPForm)
	assert.Equal(t, []string{"+15551234567", "+442079460958"}, got)
}
