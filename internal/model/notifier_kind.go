package model

import "strings"

type NotifierKind string

const (
	NotifierSMTP     NotifierKind = "smtp"
	NotifierTwilio   NotifierKind = "twilio"
	NotifierHTTPForm NotifierKind = "httpform"
)

func (k NotifierKind) String() string { return string(k) }

// ParseNotifierKind normalizes input; empty => smtp.
// Returns (value, true) if valid; otherwise (smtp, false).
func ParseNotifierKind(s string) (NotifierKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "smtp", "email":
		return NotifierSMTP, true
	case "twilio":
		return NotifierTwilio, true
	case "httpform", "http_form", "textbelt":
		return NotifierHTTPForm, true
	default:
		return NotifierSMTP, false
	}
}

func (k NotifierKind) Valid() bool {
	return k == NotifierSMTP || k == NotifierTwilio || k == NotifierHTTPForm
}

// SendsToPhones reports whether recipients are phone numbers rather than
// email addresses.
func (k NotifierKind) SendsToPhones() bool {
	return k == NotifierTwilio || k == NotifierHTTPForm
}
