// Package redact strips sensitive values (API keys, tokens, passwords,
// bearer headers) from strings before they reach a log sink or the audit
// store.
package redact

import "regexp"

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

var rules = []rule{
	// Bearer headers and provider key formats first: they are the most
	// specific and would otherwise be half-eaten by the generic rules.
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{16,}\b`), "[REDACTED:api_key]"},
	{regexp.MustCompile(`(?i)(api[_\- ]?key|secret|credential)(["':\s=]+)[^\s"',;]+`), "$1$2[REDACTED]"},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)(["':\s=]+)[^\s"',;]+`), "$1$2[REDACTED]"},
	{regexp.MustCompile(`(?i)(token)(["':\s=]+)[^\s"',;]+`), "$1$2[REDACTED]"},
}

// String returns s with sensitive values replaced by [REDACTED] markers.
func String(s string) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// Error redacts an error's message; nil-safe, returns "" for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
