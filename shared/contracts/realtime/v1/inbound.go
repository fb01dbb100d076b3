package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Boundary limits.
const (
	MaxNameChars      = 24
	CodeLength        = 6
	CodeAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	MinRadius         = 100
	MaxRadius         = 50000
	MaxFilters        = 10
	MaxFilterChars    = 32
	MaxTokenBytes     = 2048
	MaxCandidateIDLen = 128
)

// ErrInvalidPayload is wrapped by every ValidationError.
var ErrInvalidPayload = errors.New("invalid payload")

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidPayload.Error(), e.Field, e.Reason)
}

func (e ValidationError) Unwrap() error { return ErrInvalidPayload }

// Inbound is a decoded, validated client -> server event.
type Inbound interface {
	Type() string
	Validate() error
}

// Authenticated is an inbound event carrying a session token.
type Authenticated interface {
	Inbound
	AuthToken() string
}

// CreateSession is the decoded create_session event.
type CreateSession struct {
	Name     string
	Location Location
	Radius   float64
	Filters  []string
}

// JoinSession is the decoded join_session event.
type JoinSession struct {
	Code string
	Name string
}

// ReconnectSession is the decoded reconnect_session event.
type ReconnectSession struct{ Token string }

// StartSession is the decoded start_session event.
type StartSession struct{ Token string }

// Swipe is the decoded swipe event.
type Swipe struct {
	Token       string
	CandidateID string
	Decision    string
}

// ExpandQueue is the decoded expand_queue event.
type ExpandQueue struct{ Token string }

func (CreateSession) Type() string    { return TypeCreateSession }
func (JoinSession) Type() string      { return TypeJoinSession }
func (ReconnectSession) Type() string { return TypeReconnectSession }
func (StartSession) Type() string     { return TypeStartSession }
func (Swipe) Type() string            { return TypeSwipe }
func (ExpandQueue) Type() string      { return TypeExpandQueue }

func (m ReconnectSession) AuthToken() string { return m.Token }
func (m StartSession) AuthToken() string     { return m.Token }
func (m Swipe) AuthToken() string            { return m.Token }
func (m ExpandQueue) AuthToken() string      { return m.Token }

func (m CreateSession) Validate() error {
	if err := validateName(m.Name); err != nil {
		return err
	}
	if err := validateLocation(m.Location); err != nil {
		return err
	}
	if m.Radius != 0 && (math.IsNaN(m.Radius) || m.Radius < MinRadius || m.Radius > MaxRadius) {
		return ValidationError{Field: "radius", Reason: fmt.Sprintf("must be between %d and %d", MinRadius, MaxRadius)}
	}
	if len(m.Filters) > MaxFilters {
		return ValidationError{Field: "filters", Reason: "too many"}
	}
	for _, f := range m.Filters {
		if f == "" || utf8.RuneCountInString(f) > MaxFilterChars || hasControl(f) {
			return ValidationError{Field: "filters", Reason: "invalid entry"}
		}
	}
	return nil
}

func (m JoinSession) Validate() error {
	if err := validateCode(m.Code); err != nil {
		return err
	}
	return validateName(m.Name)
}

func (m ReconnectSession) Validate() error { return validateToken(m.Token) }
func (m StartSession) Validate() error     { return validateToken(m.Token) }
func (m ExpandQueue) Validate() error      { return validateToken(m.Token) }

func (m Swipe) Validate() error {
	if err := validateToken(m.Token); err != nil {
		return err
	}
	if m.CandidateID == "" || len(m.CandidateID) > MaxCandidateIDLen || hasControl(m.CandidateID) {
		return ValidationError{Field: "candidate_id", Reason: "invalid"}
	}
	if m.Decision != "accept" && m.Decision != "reject" {
		return ValidationError{Field: "decision", Reason: "must be accept or reject"}
	}
	return nil
}

// DecodeInbound decodes, normalizes and validates an inbound envelope payload.
func DecodeInbound(env Envelope) (Inbound, error) {
	var (
		msg Inbound
		err error
	)
	switch env.Type {
	case TypeCreateSession:
		var p CreateSessionPayload
		if err = unmarshalPayload(env.Payload, &p); err == nil {
			m := CreateSession{Name: strings.TrimSpace(p.Name), Radius: p.Radius}
			if p.Location == nil {
				return nil, ValidationError{Field: "location", Reason: "required"}
			}
			m.Location = *p.Location
			for _, f := range p.Filters {
				m.Filters = append(m.Filters, strings.ToLower(strings.TrimSpace(f)))
			}
			msg = m
		}
	case TypeJoinSession:
		var p JoinSessionPayload
		if err = unmarshalPayload(env.Payload, &p); err == nil {
			msg = JoinSession{
				Code: strings.ToUpper(strings.TrimSpace(p.Code)),
				Name: strings.TrimSpace(p.Name),
			}
		}
	case TypeReconnectSession:
		var p ReconnectSessionPayload
		if err = unmarshalPayload(env.Payload, &p); err == nil {
			msg = ReconnectSession{Token: strings.TrimSpace(p.Token)}
		}
	case TypeStartSession:
		var p StartSessionPayload
		if err = unmarshalPayload(env.Payload, &p); err == nil {
			msg = StartSession{Token: strings.TrimSpace(p.Token)}
		}
	case TypeSwipe:
		var p SwipePayload
		if err = unmarshalPayload(env.Payload, &p); err == nil {
			msg = Swipe{
				Token:       strings.TrimSpace(p.Token),
				CandidateID: strings.TrimSpace(p.CandidateID),
				Decision:    strings.ToLower(strings.TrimSpace(p.Decision)),
			}
		}
	case TypeExpandQueue:
		var p ExpandQueuePayload
		if err = unmarshalPayload(env.Payload, &p); err == nil {
			msg = ExpandQueue{Token: strings.TrimSpace(p.Token)}
		}
	default:
		return nil, fmt.Errorf("not an inbound type: %q", env.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func unmarshalPayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return ValidationError{Field: "payload", Reason: "missing"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return ValidationError{Field: "payload", Reason: "malformed"}
	}
	return nil
}

func validateName(s string) error {
	if s == "" || !utf8.ValidString(s) {
		return ValidationError{Field: "name", Reason: "required"}
	}
	if utf8.RuneCountInString(s) > MaxNameChars {
		return ValidationError{Field: "name", Reason: fmt.Sprintf("max %d characters", MaxNameChars)}
	}
	if hasControl(s) {
		return ValidationError{Field: "name", Reason: "control characters"}
	}
	return nil
}

func validateCode(s string) error {
	if len(s) != CodeLength {
		return ValidationError{Field: "code", Reason: "invalid"}
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(CodeAlphabet, s[i]) < 0 {
			return ValidationError{Field: "code", Reason: "invalid"}
		}
	}
	return nil
}

func validateLocation(l Location) error {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lng) || l.Lat < -90 || l.Lat > 90 || l.Lng < -180 || l.Lng > 180 {
		return ValidationError{Field: "location", Reason: "out of range"}
	}
	return nil
}

func validateToken(s string) error {
	if s == "" || len(s) > MaxTokenBytes {
		return ValidationError{Field: "token", Reason: "invalid"}
	}
	return nil
}

func hasControl(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
