// Package normalize derives the canonical form of raw field input. The
// normalized form is computed on demand and never stored as a second source
// of truth.
package normalize

import (
	"strings"
	"unicode"
)

// Phone reduces a raw phone entry to an international-looking form: digits
// with at most one leading plus. Separators users habitually type (spaces,
// dashes, dots, parentheses) are stripped and a 00 prefix becomes +.
func Phone(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '/':
			// separator noise
		default:
			// anything else stays so plausibility checks can reject it
			b.WriteRune(r)
		}
	}

	out := b.String()
	if strings.HasPrefix(out, "00") {
		out = "+" + out[2:]
	}
	return out
}

// Email lowercases and trims a raw email entry. Nothing else: aggressive
// rewriting belongs to the remote suggestion flow, not local normalization.
func Email(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// PlausiblePhone reports whether a normalized phone value is worth a remote
// lookup: at least eight digits, nothing but digits after an optional +.
func PlausiblePhone(normalized string) bool {
	s := normalized
	if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if len(s) < 8 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// PlausibleEmail reports whether a normalized email value is worth a remote
// lookup. This is a cheap gate, not RFC validation: exactly one @, a
// non-empty local part, and a domain containing a dot.
func PlausibleEmail(normalized string) bool {
	at := strings.IndexByte(normalized, '@')
	if at <= 0 || at != strings.LastIndexByte(normalized, '@') {
		return false
	}
	domain := normalized[at+1:]
	if len(domain) < 3 || !strings.Contains(domain, ".") {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	return !strings.ContainsAny(normalized, " \t")
}
