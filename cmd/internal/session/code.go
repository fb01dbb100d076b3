package session

import (
	"crypto/rand"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// CodeLength is the fixed length of session codes.
	CodeLength = 6

	// CodeAlphabet omits I, O, 0 and 1 so codes survive being read aloud.
	// Its length is 32, which lets generation mask random bytes without bias.
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxCodeAttempts = 10

	// MaxNameChars bounds display names (runes).
	MaxNameChars = 24
)

// NewCode returns a random session code.
func NewCode() (string, error) {
	b := make([]byte, CodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = CodeAlphabet[int(b[i])&(len(CodeAlphabet)-1)]
	}
	return string(b), nil
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidCode reports whether s (already normalized) is a well-formed code.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(CodeAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// NormalizeName trims a display name and rejects empty, oversized or control-character input.
func NormalizeName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || !utf8.ValidString(s) {
		return "", ErrInvalidName
	}
	if utf8.RuneCountInString(s) > MaxNameChars {
		return "", ErrInvalidName
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", ErrInvalidName
		}
	}
	return s, nil
}
