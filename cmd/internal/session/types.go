package session

import (
	"strings"
	"time"
)

// Status is the lifecycle status of a session.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusEnded     Status = "ended"
)

// Decision is a participant's verdict on a candidate.
type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

// ParseDecision validates a wire decision value.
func ParseDecision(s string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case Accept:
		return Accept, true
	case Reject:
		return Reject, true
	default:
		return "", false
	}
}

// ConnID identifies one transport connection. Empty means "no connection".
type ConnID string

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether the coordinate is inside WGS84 bounds.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Candidate is one item participants swipe on.
type Candidate struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Categories []string `json:"categories,omitempty" yaml:"categories"`
	Rating     float64  `json:"rating,omitempty" yaml:"rating"`
	PriceLevel int      `json:"price_level,omitempty" yaml:"price_level"`
	Address    string   `json:"address,omitempty" yaml:"address"`
	Location   Location `json:"location" yaml:"location"`
	PhotoRef   string   `json:"photo_ref,omitempty" yaml:"photo_ref"`
}

// SearchConfig drives progressive queue expansion.
type SearchConfig struct {
	Origin        Location
	Filters       []string
	Radius        float64 // meters, never decreases
	MaxRadius     float64 // meters
	MaxCandidates int
}

func (c SearchConfig) clone() *SearchConfig {
	c.Filters = append([]string(nil), c.Filters...)
	return &c
}

// Validate checks the static bounds of a search config.
func (c SearchConfig) Validate() error {
	if !c.Origin.Valid() {
		return ErrInvalidSearch
	}
	if c.Radius <= 0 || c.MaxRadius < c.Radius || c.MaxCandidates <= 0 {
		return ErrInvalidSearch
	}
	return nil
}

// Vote is one recorded decision with the candidate's categories at swipe time.
type Vote struct {
	Decision   Decision
	At         time.Time
	Categories []string
}

// Participant is one member of a session.
type Participant struct {
	ID        string
	Name      string
	IsHost    bool
	Conn      ConnID
	Connected bool
	JoinedAt  time.Time

	// LastSeenIndex is the position in the queue of the next item this participant has not swiped.
	LastSeenIndex int

	votes map[string]Vote
}

// Vote returns the participant's decision for candidateID.
func (p *Participant) Vote(candidateID string) (Vote, bool) {
	v, ok := p.votes[candidateID]
	return v, ok
}

// SetVote records a decision. Existing decisions are never overwritten.
func (p *Participant) SetVote(candidateID string, v Vote) error {
	if _, ok := p.votes[candidateID]; ok {
		return ErrAlreadyDecided
	}
	if p.votes == nil {
		p.votes = make(map[string]Vote)
	}
	v.Categories = append([]string(nil), v.Categories...)
	p.votes[candidateID] = v
	return nil
}

// RevertVote removes a decision recorded by a submission that failed afterwards.
func (p *Participant) RevertVote(candidateID string) {
	delete(p.votes, candidateID)
}

// VoteCount returns the number of decisions recorded.
func (p *Participant) VoteCount() int { return len(p.votes) }

// Match records unanimous acceptance of a candidate.
type Match struct {
	ID             string    `json:"id"`
	CandidateID    string    `json:"candidate_id"`
	At             time.Time `json:"at"`
	ParticipantIDs []string  `json:"participant_ids"`
}
