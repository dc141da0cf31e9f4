package audit

import (
	"os"
	"regexp"
	"strings"
)

// redactSensitiveString masks the patterns listed in STEPTRACE_REDACT
// (comma or semicolon separated regexes, or literals when they do not
// compile).
func redactSensitiveString(s string) string {
	if s == "" {
		return s
	}
	cfg := os.Getenv("STEPTRACE_REDACT")
	if cfg == "" {
		return s
	}
	fields := strings.FieldsFunc(cfg, func(r rune) bool { return r == ',' || r == ';' })
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if rx, err := regexp.Compile(f); err == nil {
			s = rx.ReplaceAllString(s, "***REDACTED***")
		} else {
			s = strings.ReplaceAll(s, f, "***REDACTED***")
		}
	}
	return s
}
