package v1

import "time"

// ---- Inbound payloads ----

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CreateSessionPayload creates a session with the sender as host.
type CreateSessionPayload struct {
	Name     string    `json:"name"`
	Location *Location `json:"location"`
	// Radius in meters. Zero selects the server default.
	Radius  float64  `json:"radius,omitempty"`
	Filters []string `json:"filters,omitempty"`
}

// JoinSessionPayload joins an existing session as a guest.
type JoinSessionPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ReconnectSessionPayload re-attaches a participant using a previously issued token.
type ReconnectSessionPayload struct {
	Token string `json:"token"`
}

// StartSessionPayload moves a waiting session to active (host only).
type StartSessionPayload struct {
	Token string `json:"token"`
}

// SwipePayload records a decision.
type SwipePayload struct {
	Token       string `json:"token"`
	CandidateID string `json:"candidate_id"`
	Decision    string `json:"decision"`
}

// ExpandQueuePayload asks for more candidates.
type ExpandQueuePayload struct {
	Token string `json:"token"`
}

// ---- Outbound payloads ----

// CandidateView is the public projection of a candidate.
type CandidateView struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Categories []string `json:"categories,omitempty"`
	Rating     float64  `json:"rating,omitempty"`
	PriceLevel int      `json:"price_level,omitempty"`
	Address    string   `json:"address,omitempty"`
	Location   Location `json:"location"`
	// PhotoURL is a signed path on this server, empty when the candidate has no photo.
	PhotoURL string `json:"photo_url,omitempty"`
}

// ParticipantView is the public projection of a participant.
type ParticipantView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"is_host"`
	Connected bool   `json:"connected"`
}

// MatchView is a created match.
type MatchView struct {
	ID             string    `json:"id"`
	CandidateID    string    `json:"candidate_id"`
	At             time.Time `json:"at"`
	ParticipantIDs []string  `json:"participant_ids"`
}

// SessionView is the full session state sent on (re)attach.
type SessionView struct {
	Code         string            `json:"code"`
	Status       string            `json:"status"`
	HostID       string            `json:"host_id"`
	ExpiresAt    time.Time         `json:"expires_at"`
	Participants []ParticipantView `json:"participants"`
	Queue        []CandidateView   `json:"queue"`
	Matches      []MatchView       `json:"matches"`
	Radius       float64           `json:"radius,omitempty"`
	// Cursor is the receiving participant's next unswiped queue position.
	Cursor int `json:"cursor"`
}

// SessionGrantPayload answers create, join and reconnect.
type SessionGrantPayload struct {
	ParticipantID string      `json:"participant_id"`
	IsHost        bool        `json:"is_host"`
	Token         string      `json:"token,omitempty"`
	Session       SessionView `json:"session"`
}

// SessionStartedPayload is broadcast on start.
type SessionStartedPayload struct {
	Code string `json:"code"`
}

// ParticipantPayload is broadcast on membership and connection changes.
type ParticipantPayload struct {
	Participant ParticipantView `json:"participant"`
}

// QueueUpdatedPayload carries the new queue.
type QueueUpdatedPayload struct {
	Queue      []CandidateView `json:"queue"`
	Added      []string        `json:"added,omitempty"`
	Eliminated string          `json:"eliminated,omitempty"`
	Radius     float64         `json:"radius,omitempty"`
}

// MatchFoundPayload is broadcast once per match.
type MatchFoundPayload struct {
	Match     MatchView     `json:"match"`
	Candidate CandidateView `json:"candidate"`
}

// SessionEndedPayload is broadcast when a session is removed.
type SessionEndedPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// NoMoreCandidatesPayload reports a terminal expansion outcome.
type NoMoreCandidatesPayload struct {
	Reason    string  `json:"reason"`
	Radius    float64 `json:"radius,omitempty"`
	Completed bool    `json:"completed,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

// Error codes (wire-stable).
const (
	ErrCodeBadJSON           = "bad_json"
	ErrCodeBadEnvelope       = "bad_envelope"
	ErrCodeInvalidPayload    = "invalid_payload"
	ErrCodeUnsupported       = "unsupported"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeJoinFailed        = "join_failed"
	ErrCodeQuotaExceeded     = "quota_exceeded"
	ErrCodeNotHost           = "not_host"
	ErrCodeNotActive         = "not_active"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeAlreadyDecided    = "already_decided"
	ErrCodeUnknownCandidate  = "unknown_candidate"
	ErrCodeExpansionBusy     = "expansion_in_flight"
	ErrCodeUnavailable       = "unavailable"
	ErrCodeInternal          = "internal"
)
