package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "huddle.realtime.v1"

// Inbound types (client -> server).
const (
	TypeCreateSession    = "create_session"
	TypeJoinSession      = "join_session"
	TypeReconnectSession = "reconnect_session"
	TypeStartSession     = "start_session"
	TypeSwipe            = "swipe"
	TypeExpandQueue      = "expand_queue"
)

// Outbound types (server -> client).
const (
	// TypeSessionCreated answers create_session with the host's grant.
	TypeSessionCreated = "session_created"
	// TypeSessionJoined answers join_session with the guest's grant.
	TypeSessionJoined = "session_joined"
	// TypeSessionReconnected answers reconnect_session.
	TypeSessionReconnected = "session_reconnected"
	// TypeSessionStarted is broadcast when the host starts swiping.
	TypeSessionStarted = "session_started"

	TypeParticipantJoined       = "participant_joined"
	TypeParticipantDisconnected = "participant_disconnected"
	TypeParticipantReconnected  = "participant_reconnected"

	// TypeQueueUpdated is broadcast when items were added or eliminated.
	TypeQueueUpdated = "queue_updated"
	// TypeMatchFound is broadcast once per matched candidate.
	TypeMatchFound = "match_found"
	// TypeSessionEnded is broadcast before the session's connections are released.
	TypeSessionEnded = "session_ended"
	// TypeNoMoreCandidates is broadcast when expansion reached a terminal outcome.
	TypeNoMoreCandidates = "no_more_candidates"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeCreateSession,
		TypeJoinSession,
		TypeReconnectSession,
		TypeStartSession,
		TypeSwipe,
		TypeExpandQueue,
		TypeSessionCreated,
		TypeSessionJoined,
		TypeSessionReconnected,
		TypeSessionStarted,
		TypeParticipantJoined,
		TypeParticipantDisconnected,
		TypeParticipantReconnected,
		TypeQueueUpdated,
		TypeMatchFound,
		TypeSessionEnded,
		TypeNoMoreCandidates,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// IsInbound reports whether typ is a client -> server type.
func IsInbound(typ string) bool {
	switch typ {
	case TypeCreateSession, TypeJoinSession, TypeReconnectSession,
		TypeStartSession, TypeSwipe, TypeExpandQueue:
		return true
	default:
		return false
	}
}
