package matching

import (
	"errors"

	"huddle/cmd/internal/session"
)

var (
	// ErrNotActive is returned when decisions are submitted outside the active state.
	ErrNotActive = session.ErrNotActive

	// ErrCandidateNotFound is returned for candidate ids the session never saw.
	ErrCandidateNotFound = errors.New("candidate not found")

	// ErrNotInQueue is returned for candidates that were already eliminated.
	ErrNotInQueue = errors.New("candidate not in queue")
)
