package realtime

import (
	"math/rand/v2"
	"time"

	"huddle/cmd/identity/ids"
	"huddle/cmd/internal/session"

	"github.com/google/uuid"
)

// NewConnID returns an opaque connection handle.
func NewConnID() session.ConnID {
	return session.ConnID(uuid.NewString())
}

// NewEnvelopeID returns a ULID used as envelope id, so ids sort by emission time in logs.
func NewEnvelopeID(now time.Time) string {
	id, err := ids.NewULID(now)
	if err != nil {
		return uuid.NewString()
	}
	return id
}

// jitter returns a uniformly distributed duration in [min, max).
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}
