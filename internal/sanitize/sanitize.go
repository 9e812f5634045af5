// Package sanitize cleans trainee input at transport boundaries before it
// reaches the engine or the logs.
package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxBytes is 4KB (conservative default)
const DefaultMaxBytes = 4096

var (
	ErrTooLarge    = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8 = errors.New("input contains invalid UTF-8 sequences")
)

// Utterance enforces the size limit, validates UTF-8, strips control
// characters other than newline, tab and carriage return, and normalizes
// to NFC so matcher keywords compare equal regardless of how accents were typed.
// Oversized input is rejected, never truncated. A limit <= 0 uses DefaultMaxBytes.
func Utterance(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	if strings.IndexFunc(input, unsafeControl) >= 0 {
		var b strings.Builder
		b.Grow(len(input))
		for _, r := range input {
			if !unsafeControl(r) {
				b.WriteRune(r)
			}
		}
		input = b.String()
	}
	return norm.NFC.String(input), nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}

// Reason maps a sanitize error to a short metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrInvalidUTF8):
		return "invalid_utf8"
	default:
		return "other"
	}
}
