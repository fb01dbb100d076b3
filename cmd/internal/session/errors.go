package session

import "errors"

var (
	// ErrNotFound is returned for unknown, ended or expired sessions.
	ErrNotFound = errors.New("session not found")

	// ErrParticipantNotFound is returned when a participant id is not part of the session.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrOriginQuota is returned when an origin already owns its maximum of concurrent sessions.
	ErrOriginQuota = errors.New("origin session quota reached")

	// ErrCodeSpaceExhausted is returned when no free session code was found within the retry budget.
	ErrCodeSpaceExhausted = errors.New("session code space exhausted")

	// ErrSessionFull is returned when the participant ceiling is reached.
	ErrSessionFull = errors.New("session is full")

	// ErrNotJoinable is returned when the session no longer accepts participants.
	ErrNotJoinable = errors.New("session not joinable")

	// ErrNotHost is returned when a host-only transition is attempted by a guest.
	ErrNotHost = errors.New("participant is not host")

	// ErrNotActive is returned for swipes and expansions outside the active state.
	ErrNotActive = errors.New("session not active")

	// ErrInvalidTransition is returned for status transitions the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidName is returned for empty, oversized or control-character names.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidSearch is returned for inconsistent search configuration.
	ErrInvalidSearch = errors.New("invalid search config")

	// ErrMatchExists is returned when a second match for the same candidate is attempted.
	ErrMatchExists = errors.New("match already exists")

	// ErrAlreadyDecided is returned when a participant already recorded a decision for a candidate.
	ErrAlreadyDecided = errors.New("decision already recorded")
)
