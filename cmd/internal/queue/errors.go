package queue

import "errors"

var (
	// ErrExpansionInFlight is returned when another expansion for the session is running.
	ErrExpansionInFlight = errors.New("queue expansion already in flight")

	// ErrNoSource is returned when no candidate source is configured.
	ErrNoSource = errors.New("no candidate source configured")

	// ErrFetch wraps candidate source failures that produced no items.
	ErrFetch = errors.New("fetch candidates")
)
