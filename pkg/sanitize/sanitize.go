package sanitize

import (
	"regexp"
	"unicode/utf8"
)

// Plain email addresses (case-insensitive)
var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Common phone shapes: +44 ..., (020) 7946 0958, 07700 900123 and so on.
// Only digits, spaces, dashes, dots, brackets and a leading plus are allowed,
// with at least 9 digits overall so ordinary numbers in prose survive.
var rePhone = regexp.MustCompile(`\+?\(?\d[\d\s\-\.\(\)]{7,}\d`)

// UK National Insurance numbers, with or without spaces.
var reNINO = regexp.MustCompile(`(?i)\b[A-CEGHJ-PR-TW-Z]{2}\s?\d{2}\s?\d{2}\s?\d{2}\s?[A-D]\b`)

// RedactPII masks emails, NI numbers and phone numbers in free text.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = reNINO.ReplaceAllString(s, "[redacted NI number]")
	s = rePhone.ReplaceAllStringFunc(s, func(m string) string {
		if digits(m) < 9 {
			return m
		}
		return "[redacted phone]"
	})
	return s
}

func digits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}

// Summary cuts s to at most max bytes on a word boundary for list previews.
func Summary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && i < len(s) && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
		for i > 0 && !utf8.RuneStart(s[i]) {
			i--
		}
	}
	return s[:i] + "…"
}
