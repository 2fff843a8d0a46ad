package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/model"
	"github.com/jmehdipour/payment-alerts/internal/util"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Recipients  []string          `mapstructure:"recipients"`
	EventLog    EventLogConfig    `mapstructure:"event_log"`
	Notifier    NotifierConfig    `mapstructure:"notifier"`
	Dispatcher  DispatcherConfig  `mapstructure:"dispatcher"`
	StatusCheck StatusCheckConfig `mapstructure:"status_check"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	WebhookPath     string        `mapstructure:"webhook_path"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type EventLogConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type BreakerConfig struct {
	FailThreshold int           `mapstructure:"fail_threshold"`
	OpenFor       time.Duration `mapstructure:"open_for"`
}

type NotifierConfig struct {
	Kind     model.NotifierKind `mapstructure:"kind"`
	Timeout  time.Duration      `mapstructure:"timeout"`
	Breaker  BreakerConfig      `mapstructure:"breaker"`
	SMTP     SMTPConfig         `mapstructure:"smtp"`
	Twilio   TwilioConfig       `mapstructure:"twilio"`
	HTTPForm HTTPFormConfig     `mapstructure:"http_form"`
}

type SMTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	FromName   string `mapstructure:"from_name"`
	Encryption string `mapstructure:"encryption"` // none | starttls | ssl_tls
}

type TwilioConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

type HTTPFormConfig struct {
	SendURL   string `mapstructure:"send_url"`
	StatusURL string `mapstructure:"status_url"`
	APIKey    string `mapstructure:"api_key"`
}

type DispatcherConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type StatusCheckConfig struct {
	Mode    string        `mapstructure:"mode"` // off | inline | kafka | redis
	Delay   time.Duration `mapstructure:"delay"`
	Timeout time.Duration `mapstructure:"timeout"`
	Workers int           `mapstructure:"workers"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	Key          string        `mapstructure:"key"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

// legacyEnv maps config keys to the variable names used by the first
// deployments of the service. ALERTS_* names still take precedence.
var legacyEnv = map[string]string{
	"recipients":                  "SMS_RECIPIENTS",
	"notifier.smtp.username":      "SMTP_USER",
	"notifier.smtp.password":      "SMTP_PASS",
	"notifier.twilio.account_sid": "TWILIO_ACCOUNT_SID",
	"notifier.twilio.auth_token":  "TWILIO_AUTH_TOKEN",
	"notifier.twilio.from":        "TWILIO_FROM_NUMBER",
	"notifier.http_form.api_key":  "TEXTBELT_KEY",
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (ALERTS_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (ALERTS_*)
	v.SetEnvPrefix("ALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envName := "ALERTS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if err := v.BindEnv("port", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind env port: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if port := strings.TrimSpace(v.GetString("port")); port != "" {
		cfg.HTTP.Addr = ":" + port
	}

	kind, ok := model.ParseNotifierKind(string(cfg.Notifier.Kind))
	if !ok {
		return Config{}, fmt.Errorf("unknown notifier kind %q", cfg.Notifier.Kind)
	}
	cfg.Notifier.Kind = kind
	cfg.Recipients = NormalizeRecipients(cfg.Recipients, kind)

	return cfg, nil
}

// NormalizeRecipients trims entries, drops empty ones and, for SMS transports,
// rewrites phone numbers into E.164 form. Entries given as a single comma
// separated string are split.
func NormalizeRecipients(raw []string, kind model.NotifierKind) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		for _, r := range strings.Split(item, ",") {
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			if kind.SendsToPhones() {
				r = util.NormalizePhone(r)
			}
			out = append(out, r)
		}
	}
	return out
}

// Warnings lists configuration gaps that do not prevent startup but degrade
// dispatch: no recipients means no alert is ever sent, missing credentials
// make every send fail.
func (c Config) Warnings() []string {
	var w []string
	if len(c.Recipients) == 0 {
		w = append(w, "no recipients configured; alerts will not be dispatched")
	}
	for _, field := range c.Notifier.MissingCredentials() {
		w = append(w, fmt.Sprintf("notifier %s: missing %s; sends will fail", c.Notifier.Kind, field))
	}
	return w
}

// MissingCredentials returns the names of credential fields the selected
// transport needs but that are empty.
func (n NotifierConfig) MissingCredentials() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	switch n.Kind {
	case model.NotifierSMTP:
		check("smtp.username", n.SMTP.Username)
		check("smtp.password", n.SMTP.Password)
	case model.NotifierTwilio:
		check("twilio.account_sid", n.Twilio.AccountSID)
		check("twilio.auth_token", n.Twilio.AuthToken)
		check("twilio.from", n.Twilio.From)
	case model.NotifierHTTPForm:
		check("http_form.api_key", n.HTTPForm.APIKey)
	}
	return missing
}
