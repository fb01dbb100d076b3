// Package ids provides the id primitives used for participants, matches and envelopes.
package ids

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars).
// ULIDs sort by creation time, which keeps participant listings and logs in join order.
func NewULID(now time.Time) (string, error) {
	return NewULIDFrom(now, rand.Reader)
}

// NewULIDFrom returns a ULID drawing entropy from r.
func NewULIDFrom(now time.Time, r io.Reader) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), r)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsULID reports whether s parses as a ULID.
func IsULID(s string) bool {
	if len(s) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}
