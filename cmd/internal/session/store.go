package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"huddle/cmd/identity/ids"
)

// Removal reasons reported by every path that destroys a session.
const (
	ReasonHostTimeout = "host_timeout"
	ReasonEvicted     = "evicted"
	ReasonIdle        = "idle"
	ReasonExpired     = "expired"
	ReasonShutdown    = "shutdown"
)

// TokenIssuer issues session identity tokens.
type TokenIssuer interface {
	Issue(code, participantID string, isHost bool, now time.Time) (string, error)
}

// CreateInput describes a session creation request.
type CreateInput struct {
	HostName   string
	Candidates []Candidate
	Search     *SearchConfig
	Origin     string
	Now        time.Time
}

// Created is returned by Create and Join.
type Created struct {
	Snapshot      Snapshot
	ParticipantID string
	Token         string
}

// Attachment is returned when a connection is bound to a participant.
type Attachment struct {
	Snapshot      Snapshot
	ParticipantID string
	IsHost        bool
	// Replaced is the participant's previous connection, if a different one was bound.
	Replaced ConnID
}

// DisconnectInfo describes the participant a dropped connection belonged to.
type DisconnectInfo struct {
	Code          string
	ParticipantID string
	IsHost        bool
	Connected     int
}

// Removed describes a destroyed session.
type Removed struct {
	Code   string
	Reason string
	Origin string
	Conns  []ConnID
}

type connRef struct {
	code string
	pid  string
}

// Store is the session registry.
type Store struct {
	log    *slog.Logger
	cfg    Config
	tokens TokenIssuer

	newCode func() (string, error)
	newID   func(time.Time) (string, error)

	mu       sync.RWMutex
	sessions map[string]*Session
	conns    map[ConnID]connRef
	origins  map[string]int

	clockMu sync.Mutex
	clocks  map[string]time.Time

	timers *Timers
}

// Option customizes a Store.
type Option func(*Store)

// WithCodeGenerator replaces the random code generator.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Store) {
		if fn != nil {
			s.newCode = fn
		}
	}
}

// WithIDGenerator replaces the participant id generator.
func WithIDGenerator(fn func(time.Time) (string, error)) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore constructs an empty Store.
func NewStore(log *slog.Logger, cfg Config, tokens TokenIssuer, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		log:      log,
		cfg:      cfg.normalized(),
		tokens:   tokens,
		newCode:  NewCode,
		newID:    ids.NewULID,
		sessions: make(map[string]*Session),
		conns:    make(map[ConnID]connRef),
		origins:  make(map[string]int),
		clocks:   make(map[string]time.Time),
		timers:   NewTimers(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// Create registers a new session with its host.
func (s *Store) Create(in CreateInput) (Created, error) {
	name, err := NormalizeName(in.HostName)
	if err != nil {
		return Created{}, err
	}
	var search *SearchConfig
	if in.Search != nil {
		if err := in.Search.Validate(); err != nil {
			return Created{}, err
		}
		search = in.Search.clone()
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hostID, err := s.newID(now)
	if err != nil {
		return Created{}, fmt.Errorf("participant id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Origin != "" && s.cfg.MaxPerOrigin > 0 && s.origins[in.Origin] >= s.cfg.MaxPerOrigin {
		return Created{}, ErrOriginQuota
	}

	code, err := s.freeCodeLocked()
	if err != nil {
		return Created{}, err
	}

	tok, err := s.tokens.Issue(code, hostID, true, now)
	if err != nil {
		return Created{}, fmt.Errorf("issue token: %w", err)
	}

	sess := newSession(code, in.Origin, now, s.cfg.TTL, search)
	sess.addParticipant(&Participant{ID: hostID, Name: name, IsHost: true, JoinedAt: now})

	limit := 0
	if search != nil {
		limit = search.MaxCandidates
	}
	sess.AppendCandidates(in.Candidates, limit)

	s.sessions[code] = sess
	if in.Origin != "" {
		s.origins[in.Origin]++
	}
	s.clockMu.Lock()
	s.clocks[code] = now
	s.clockMu.Unlock()

	s.log.Info("session.created", "code", code, "candidates", sess.CandidateCount(), "sessions", len(s.sessions))

	return Created{Snapshot: sess.Snapshot(), ParticipantID: hostID, Token: tok}, nil
}

func (s *Store) freeCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		if _, taken := s.sessions[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// Join adds a guest participant. Unknown, ended and expired sessions are ErrNotFound.
func (s *Store) Join(code, name string, now time.Time) (Created, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Created{}, err
	}
	code = NormalizeCode(code)

	var out Created
	err = s.With(code, now, func(sess *Session) error {
		if sess.Status == StatusCompleted {
			return ErrNotJoinable
		}
		if sess.ParticipantCount() >= s.cfg.MaxParticipants {
			return ErrSessionFull
		}

		pid, err := s.newID(now)
		if err != nil {
			return fmt.Errorf("participant id: %w", err)
		}
		tok, err := s.tokens.Issue(code, pid, false, now)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}

		// New participants start at the head of the current queue.
		sess.addParticipant(&Participant{ID: pid, Name: name, JoinedAt: now})
		out = Created{Snapshot: sess.Snapshot(), ParticipantID: pid, Token: tok}
		return nil
	})
	if err != nil {
		return Created{}, err
	}

	s.log.Info("session.joined", "code", code, "participant_id", out.ParticipantID)
	return out, nil
}

// With runs fn with the session locked. The session's LRU clock is touched.
func (s *Store) With(code string, now time.Time, fn func(*Session) error) error {
	s.mu.RLock()
	sess := s.sessions[code]
	s.mu.RUnlock()
	if sess == nil {
		return ErrNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended || sess.Expired(now) {
		return ErrNotFound
	}
	s.touch(code, now)
	return fn(sess)
}

// Get returns a snapshot of the session.
func (s *Store) Get(code string, now time.Time) (Snapshot, error) {
	var snap Snapshot
	err := s.With(NormalizeCode(code), now, func(sess *Session) error {
		snap = sess.Snapshot()
		return nil
	})
	return snap, err
}

// Start moves a waiting session to active. Only the host may start it.
func (s *Store) Start(code, participantID string, now time.Time) (Snapshot, error) {
	var snap Snapshot
	err := s.With(code, now, func(sess *Session) error {
		p := sess.Participant(participantID)
		if p == nil {
			return ErrParticipantNotFound
		}
		if !p.IsHost {
			return ErrNotHost
		}
		if sess.Status != StatusWaiting {
			return ErrInvalidTransition
		}
		sess.Status = StatusActive
		snap = sess.Snapshot()
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	s.log.Info("session.started", "code", code)
	return snap, nil
}

// Attach binds conn to (code, participantID) and marks the participant connected.
//
// The existence check and the registration happen under the store lock, so a
// concurrent sweep cannot remove the session between the two.
func (s *Store) Attach(code, participantID string, conn ConnID, now time.Time) (Attachment, error) {
	if conn == "" {
		return Attachment{}, errors.New("session: empty connection handle")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[code]
	if sess == nil {
		return Attachment{}, ErrNotFound
	}

	// A connection belongs to at most one participant.
	if ref, ok := s.conns[conn]; ok && (ref.code != code || ref.pid != participantID) {
		s.detachLocked(conn, ref)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended || sess.Expired(now) {
		return Attachment{}, ErrNotFound
	}
	p := sess.Participant(participantID)
	if p == nil {
		return Attachment{}, ErrParticipantNotFound
	}

	var replaced ConnID
	if p.Conn != "" && p.Conn != conn {
		replaced = p.Conn
		delete(s.conns, p.Conn)
	}
	p.Conn = conn
	p.Connected = true
	s.conns[conn] = connRef{code: code, pid: participantID}
	s.touch(code, now)

	return Attachment{
		Snapshot:      sess.Snapshot(),
		ParticipantID: participantID,
		IsHost:        p.IsHost,
		Replaced:      replaced,
	}, nil
}

func (s *Store) detachLocked(conn ConnID, ref connRef) {
	delete(s.conns, conn)
	other := s.sessions[ref.code]
	if other == nil {
		return
	}
	other.mu.Lock()
	if p := other.Participant(ref.pid); p != nil && p.Conn == conn {
		p.Conn = ""
		p.Connected = false
	}
	other.mu.Unlock()
}

// HandleDisconnect clears the connection and reports who it belonged to.
func (s *Store) HandleDisconnect(conn ConnID, now time.Time) (DisconnectInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.conns[conn]
	if !ok {
		return DisconnectInfo{}, false
	}
	delete(s.conns, conn)

	sess := s.sessions[ref.code]
	if sess == nil {
		return DisconnectInfo{}, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	p := sess.Participant(ref.pid)
	if p == nil || p.Conn != conn {
		return DisconnectInfo{}, false
	}
	p.Conn = ""
	p.Connected = false
	s.touch(ref.code, now)

	return DisconnectInfo{
		Code:          ref.code,
		ParticipantID: ref.pid,
		IsHost:        p.IsHost,
		Connected:     len(sess.Connected()),
	}, true
}

// EndSession removes the session and every reverse mapping that points at it.
func (s *Store) EndSession(code, reason string) (Removed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(code, reason)
}

// EvictLRU removes up to n least-recently-touched sessions regardless of connection state.
func (s *Store) EvictLRU(n int) []Removed {
	if n <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clockMu.Lock()
	order := sortedKeys(s.clocks)
	s.clockMu.Unlock()

	var out []Removed
	for _, code := range order {
		if len(out) >= n {
			break
		}
		if r, ok := s.removeLocked(code, ReasonEvicted); ok {
			out = append(out, r)
		}
	}
	return out
}

// Sweep removes expired sessions and sessions whose participants are all
// disconnected and that have not been touched for longer than idle.
// A session with a connected participant is never removed for idleness.
func (s *Store) Sweep(now time.Time, idle time.Duration) []Removed {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Removed
	for code, sess := range s.sessions {
		sess.mu.Lock()
		expired := sess.Expired(now)
		anyConnected := len(sess.Connected()) > 0
		sess.mu.Unlock()

		reason := ""
		switch {
		case expired:
			reason = ReasonExpired
		case !anyConnected && idle > 0 && now.Sub(s.lastTouch(code)) > idle:
			reason = ReasonIdle
		}
		if reason == "" {
			continue
		}
		if r, ok := s.removeLocked(code, reason); ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) removeLocked(code, reason string) (Removed, bool) {
	sess := s.sessions[code]
	if sess == nil {
		return Removed{}, false
	}

	sess.mu.Lock()
	sess.ended = true
	sess.Status = StatusEnded
	var conns []ConnID
	for _, p := range sess.participants {
		if p.Conn != "" {
			conns = append(conns, p.Conn)
			p.Conn = ""
			p.Connected = false
		}
	}
	origin := sess.origin
	sess.mu.Unlock()

	for _, c := range conns {
		if ref, ok := s.conns[c]; ok && ref.code == code {
			delete(s.conns, c)
		}
	}
	if origin != "" {
		if s.origins[origin] <= 1 {
			delete(s.origins, origin)
		} else {
			s.origins[origin]--
		}
	}
	delete(s.sessions, code)

	s.clockMu.Lock()
	delete(s.clocks, code)
	s.clockMu.Unlock()

	s.timers.Cancel(code)

	s.log.Info("session.removed", "code", code, "reason", reason, "sessions", len(s.sessions))
	return Removed{Code: code, Reason: reason, Origin: origin, Conns: conns}, true
}

// ScheduleHostGrace ends the session after the configured grace period unless
// CancelHostGrace is called first. fn runs after the session was removed.
// It reports false when the session is gone or its host is connected, and the
// timer re-checks host absence under the locks before removing anything.
func (s *Store) ScheduleHostGrace(code string, fn func(Removed)) bool {
	s.mu.RLock()
	absent := s.hostAbsentLocked(code)
	s.mu.RUnlock()
	if !absent {
		return false
	}

	s.timers.Schedule(code, s.cfg.HostGrace, func() {
		s.mu.Lock()
		if !s.hostAbsentLocked(code) {
			s.mu.Unlock()
			s.log.Debug("session.host.grace.skip", "code", code)
			return
		}
		r, removed := s.removeLocked(code, ReasonHostTimeout)
		s.mu.Unlock()

		if removed && fn != nil {
			fn(r)
		}
	})
	return true
}

// hostAbsentLocked reports whether code exists and its host has no connection.
// s.mu must be held.
func (s *Store) hostAbsentLocked(code string) bool {
	sess := s.sessions[code]
	if sess == nil {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	host := sess.Participant(sess.HostID)
	return host == nil || !host.Connected
}

// CancelHostGrace cancels a pending host-absence timer.
func (s *Store) CancelHostGrace(code string) bool {
	return s.timers.Cancel(code)
}

// HostGracePending reports whether a host-absence timer is running for code.
func (s *Store) HostGracePending(code string) bool {
	return s.timers.Pending(code)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// OriginCount returns the number of live sessions created by origin.
func (s *Store) OriginCount(origin string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.origins[origin]
}

// ConnCount returns the number of registered connections.
func (s *Store) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// LastTouched returns the LRU clock of code.
func (s *Store) LastTouched(code string) (time.Time, bool) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t, ok := s.clocks[code]
	return t, ok
}

// Close ends every session and stops pending timers.
func (s *Store) Close() []Removed {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Removed
	for code := range s.sessions {
		if r, ok := s.removeLocked(code, ReasonShutdown); ok {
			out = append(out, r)
		}
	}
	s.timers.StopAll()
	return out
}

func (s *Store) touch(code string, now time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if prev, ok := s.clocks[code]; ok && now.After(prev) {
		s.clocks[code] = now
	}
}

func (s *Store) lastTouch(code string) time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.clocks[code]
}
