package audit

import (
	"strings"
	"unicode"
)

// MaxValueRunes caps every free-form value written to a record.
const MaxValueRunes = 64

// Sanitize strips control characters and caps s at MaxValueRunes.
func Sanitize(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		if n == MaxValueRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
