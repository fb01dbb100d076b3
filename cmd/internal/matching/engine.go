package matching

import (
	"fmt"
	"log/slog"
	"time"

	"huddle/cmd/identity/ids"
	"huddle/cmd/internal/session"
)

// MinConsensus is the smallest connected group that can produce a match.
const MinConsensus = 2

// Result describes the effect of one decision.
type Result struct {
	// Match is set when this decision completed consensus.
	Match *session.Match

	// QueueChanged reports that the queue lost an item.
	QueueChanged bool

	// Eliminated is the candidate removed from the queue, if any.
	Eliminated string
}

// Engine records decisions and evaluates elimination and consensus.
type Engine struct {
	log   *slog.Logger
	newID func(time.Time) (string, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithIDGenerator replaces the match id generator.
func WithIDGenerator(fn func(time.Time) (string, error)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// New constructs an Engine.
func New(log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{log: log, newID: ids.NewULID}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// RecordDecision applies participantID's decision on candidateID.
//
// The caller must hold the session lock (session.Store.With). Validation happens
// before any mutation; a failure after the vote was recorded rolls it back.
func (e *Engine) RecordDecision(s *session.Session, participantID, candidateID string, d session.Decision, now time.Time) (Result, error) {
	if s.Status != session.StatusActive {
		return Result{}, ErrNotActive
	}
	p := s.Participant(participantID)
	if p == nil {
		return Result{}, session.ErrParticipantNotFound
	}
	cand, ok := s.Candidate(candidateID)
	if !ok {
		return Result{}, ErrCandidateNotFound
	}
	idx := s.QueueIndex(candidateID)
	if idx < 0 {
		return Result{}, ErrNotInQueue
	}
	if d != session.Accept && d != session.Reject {
		return Result{}, fmt.Errorf("matching: unknown decision %q", d)
	}

	if err := p.SetVote(candidateID, session.Vote{Decision: d, At: now, Categories: cand.Categories}); err != nil {
		return Result{}, err
	}
	prevCursor := p.LastSeenIndex
	if idx+1 > p.LastSeenIndex {
		p.LastSeenIndex = idx + 1
	}
	fresh := s.MarkCategories(d, participantID, cand.Categories)

	if d == session.Reject {
		return e.reject(s, participantID, candidateID), nil
	}

	res, err := e.accept(s, candidateID, now)
	if err != nil {
		p.RevertVote(candidateID)
		p.LastSeenIndex = prevCursor
		s.UnmarkCategories(d, participantID, fresh)
		return Result{}, err
	}
	return res, nil
}

func (e *Engine) reject(s *session.Session, participantID, candidateID string) Result {
	size, _ := s.AddRejection(candidateID, participantID)
	if size < s.ParticipantCount() {
		return Result{}
	}
	if !s.RemoveFromQueue(candidateID) {
		return Result{}
	}
	e.log.Info("queue.eliminated", "code", s.Code, "candidate_id", candidateID, "remaining", s.QueueLen())
	return Result{QueueChanged: true, Eliminated: candidateID}
}

func (e *Engine) accept(s *session.Session, candidateID string, now time.Time) (Result, error) {
	if _, exists := s.Match(candidateID); exists {
		return Result{}, nil
	}

	if !Consensus(s, candidateID) {
		return Result{}, nil
	}
	var pids []string
	for _, p := range s.Connected() {
		pids = append(pids, p.ID)
	}

	id, err := e.newID(now)
	if err != nil {
		return Result{}, fmt.Errorf("match id: %w", err)
	}
	m := session.Match{ID: id, CandidateID: candidateID, At: now, ParticipantIDs: pids}
	if err := s.AddMatch(m); err != nil {
		return Result{}, err
	}

	e.log.Info("match.found", "code", s.Code, "candidate_id", candidateID, "participants", len(pids))
	return Result{Match: &m}, nil
}

// Consensus reports whether candidateID currently has unanimous acceptance
// among connected participants. It never creates a match.
func Consensus(s *session.Session, candidateID string) bool {
	connected := s.Connected()
	if len(connected) < MinConsensus {
		return false
	}
	for _, p := range connected {
		v, ok := p.Vote(candidateID)
		if !ok || v.Decision != session.Accept {
			return false
		}
	}
	return true
}
