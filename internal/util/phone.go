package util

import (
	"regexp"
	"strings"
)

var nonDialable = regexp.MustCompile(`[^\d\+]+`)

// NormalizePhone rewrites user input into E.164. Bare 10-digit numbers are
// treated as North American (+1). Input that is not a phone number at all
// (an email address, say) is returned trimmed and otherwise untouched.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.Contains(s, "@") {
		return s
	}
	s = nonDialable.ReplaceAllString(s, "")

	switch {
	case strings.HasPrefix(s, "+"):
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case len(s) == 10:
		s = "+1" + s
	case len(s) == 11 && strings.HasPrefix(s, "1"):
		s = "+" + s
	}

	return s
}
