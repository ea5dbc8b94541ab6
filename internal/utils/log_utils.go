package utils

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLogStringLength defines the maximum length, in characters, for user-provided strings in logs
const MaxLogStringLength = 200

// unprintable matches anything that is not a letter, number, punctuation, symbol or whitespace
var unprintable = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{S}\p{Z}]`)

// SanitizeLogString sanitizes a user-controlled string such as a display
// name, chat text or URL path segment for safe logging. Control characters
// become spaces so one value cannot forge extra log lines.
func SanitizeLogString(input string) string {
	if input == "" {
		return ""
	}

	// Truncate on a character boundary
	if utf8.RuneCountInString(input) > MaxLogStringLength {
		input = string([]rune(input)[:MaxLogStringLength]) + "... (truncated)"
	}

	// Pre-process CRLF to avoid double spaces
	input = strings.ReplaceAll(input, "\r\n", "\n")

	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, input)

	return unprintable.ReplaceAllString(sanitized, "")
}

// MaskToken shortens a bearer token to a prefix that is safe to log
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:6] + "***"
}

// RedactURL masks credentials carried in the query string of a URL, as used
// by WebSocket and event stream connections
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return SanitizeLogString(raw)
	}

	q := u.Query()
	for _, key := range []string{"token", "access_token"} {
		if v := q.Get(key); v != "" {
			q.Set(key, MaskToken(v))
		}
	}
	u.RawQuery = q.Encode()
	u.User = nil

	return SanitizeLogString(u.String())
}
