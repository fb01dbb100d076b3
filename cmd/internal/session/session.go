package session

import (
	"sort"
	"sync"
	"time"
)

type idSet map[string]struct{}

// Session is one group decision instance.
//
// Exported fields and methods may only be used inside Store.With, which holds mu.
type Session struct {
	mu sync.Mutex

	Code      string
	HostID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    Status
	Search    *SearchConfig

	origin    string
	ended     bool
	expanding bool

	candidates   []Candidate
	candidateIdx map[string]int
	queue        []string

	participants map[string]*Participant
	order        []string

	matches    []Match
	matchIdx   map[string]int
	rejections map[string]idSet

	categoryRejects map[string]idSet
	categoryAccepts map[string]idSet
}

func newSession(code, origin string, now time.Time, ttl time.Duration, search *SearchConfig) *Session {
	return &Session{
		Code:            code,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
		Status:          StatusWaiting,
		Search:          search,
		origin:          origin,
		candidateIdx:    make(map[string]int),
		participants:    make(map[string]*Participant),
		matchIdx:        make(map[string]int),
		rejections:      make(map[string]idSet),
		categoryRejects: make(map[string]idSet),
		categoryAccepts: make(map[string]idSet),
	}
}

// Expired reports whether the session outlived its TTL at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ---- candidates & queue ----

// Candidate returns the candidate with id.
func (s *Session) Candidate(id string) (Candidate, bool) {
	i, ok := s.candidateIdx[id]
	if !ok {
		return Candidate{}, false
	}
	return s.candidates[i], true
}

// CandidateCount returns the number of known candidates (queued or not).
func (s *Session) CandidateCount() int { return len(s.candidates) }

// KnownIDs returns every candidate id the session has seen.
func (s *Session) KnownIDs() []string {
	out := make([]string, 0, len(s.candidates))
	for _, c := range s.candidates {
		out = append(out, c.ID)
	}
	return out
}

// Queue returns a copy of the queue.
func (s *Session) Queue() []string {
	return append([]string(nil), s.queue...)
}

// QueueLen returns the queue length.
func (s *Session) QueueLen() int { return len(s.queue) }

// QueueIndex returns the position of id in the queue, or -1.
func (s *Session) QueueIndex(id string) int {
	for i, q := range s.queue {
		if q == id {
			return i
		}
	}
	return -1
}

// AppendCandidates adds unknown candidates to both candidates and queue.
// It stops at limit when limit > 0 and returns the added candidates.
func (s *Session) AppendCandidates(in []Candidate, limit int) []Candidate {
	var added []Candidate
	for _, c := range in {
		if limit > 0 && len(s.candidates) >= limit {
			break
		}
		if c.ID == "" {
			continue
		}
		if _, known := s.candidateIdx[c.ID]; known {
			continue
		}
		c.Categories = append([]string(nil), c.Categories...)
		s.candidateIdx[c.ID] = len(s.candidates)
		s.candidates = append(s.candidates, c)
		s.queue = append(s.queue, c.ID)
		added = append(added, c)
	}
	return added
}

// RemoveFromQueue drops id from the queue. Candidates keep the entry.
// Participant cursors past the removed slot shift back so they keep pointing
// at the same next item.
func (s *Session) RemoveFromQueue(id string) bool {
	i := s.QueueIndex(id)
	if i < 0 {
		return false
	}
	s.queue = append(s.queue[:i], s.queue[i+1:]...)
	for _, p := range s.participants {
		if p.LastSeenIndex > i {
			p.LastSeenIndex--
		}
	}
	return true
}

// ---- participants ----

func (s *Session) addParticipant(p *Participant) {
	s.participants[p.ID] = p
	s.order = append(s.order, p.ID)
	if p.IsHost {
		s.HostID = p.ID
	}
}

// Participant returns the participant with id, or nil.
func (s *Session) Participant(id string) *Participant {
	return s.participants[id]
}

// Participants returns participants in join order.
func (s *Session) Participants() []*Participant {
	out := make([]*Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.participants[id])
	}
	return out
}

// ParticipantCount is the total membership, connected or not.
func (s *Session) ParticipantCount() int { return len(s.participants) }

// Connected returns the currently connected participants in join order.
func (s *Session) Connected() []*Participant {
	var out []*Participant
	for _, id := range s.order {
		if p := s.participants[id]; p.Connected {
			out = append(out, p)
		}
	}
	return out
}

// ---- rejections & preferences ----

// AddRejection records pid in the candidate's rejection set and returns the set size.
// The boolean reports whether pid was newly added.
func (s *Session) AddRejection(candidateID, pid string) (int, bool) {
	set := s.rejections[candidateID]
	if set == nil {
		set = make(idSet)
		s.rejections[candidateID] = set
	}
	_, had := set[pid]
	set[pid] = struct{}{}
	return len(set), !had
}

// RemoveRejection undoes AddRejection.
func (s *Session) RemoveRejection(candidateID, pid string) {
	set := s.rejections[candidateID]
	delete(set, pid)
	if len(set) == 0 {
		delete(s.rejections, candidateID)
	}
}

// Rejections returns the number of participants who rejected candidateID.
func (s *Session) Rejections(candidateID string) int { return len(s.rejections[candidateID]) }

// MarkCategories adds pid to the acceptance or rejection set of every category.
// It returns the categories where pid was newly added so a rollback can undo exactly those.
func (s *Session) MarkCategories(d Decision, pid string, categories []string) []string {
	sets := s.categoryAccepts
	if d == Reject {
		sets = s.categoryRejects
	}
	var fresh []string
	for _, c := range categories {
		if c == "" {
			continue
		}
		set := sets[c]
		if set == nil {
			set = make(idSet)
			sets[c] = set
		}
		if _, had := set[pid]; !had {
			set[pid] = struct{}{}
			fresh = append(fresh, c)
		}
	}
	return fresh
}

// UnmarkCategories removes pid from the given categories' sets.
func (s *Session) UnmarkCategories(d Decision, pid string, categories []string) {
	sets := s.categoryAccepts
	if d == Reject {
		sets = s.categoryRejects
	}
	for _, c := range categories {
		set := sets[c]
		delete(set, pid)
		if len(set) == 0 {
			delete(sets, c)
		}
	}
}

// CategoryCounts returns distinct-participant counts per category for accepts and rejects.
func (s *Session) CategoryCounts() (accepts, rejects map[string]int) {
	accepts = make(map[string]int, len(s.categoryAccepts))
	rejects = make(map[string]int, len(s.categoryRejects))
	for c, set := range s.categoryAccepts {
		accepts[c] = len(set)
	}
	for c, set := range s.categoryRejects {
		rejects[c] = len(set)
	}
	return accepts, rejects
}

// ---- matches ----

// Match returns the match for candidateID.
func (s *Session) Match(candidateID string) (Match, bool) {
	i, ok := s.matchIdx[candidateID]
	if !ok {
		return Match{}, false
	}
	return s.matches[i], true
}

// AddMatch stores m. At most one match exists per candidate.
func (s *Session) AddMatch(m Match) error {
	if _, ok := s.matchIdx[m.CandidateID]; ok {
		return ErrMatchExists
	}
	m.ParticipantIDs = append([]string(nil), m.ParticipantIDs...)
	s.matchIdx[m.CandidateID] = len(s.matches)
	s.matches = append(s.matches, m)
	return nil
}

// Matches returns a copy of all matches in creation order.
func (s *Session) Matches() []Match {
	out := make([]Match, len(s.matches))
	copy(out, s.matches)
	return out
}

// ---- expansion guard ----

// BeginExpand marks an expansion in flight. It reports false if one already is.
func (s *Session) BeginExpand() bool {
	if s.expanding {
		return false
	}
	s.expanding = true
	return true
}

// EndExpand clears the in-flight expansion marker.
func (s *Session) EndExpand() { s.expanding = false }

// ---- read model ----

// ParticipantView is the public projection of a participant.
type ParticipantView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	IsHost        bool   `json:"is_host"`
	Connected     bool   `json:"connected"`
	LastSeenIndex int    `json:"last_seen_index"`
}

// Snapshot is an immutable copy of a session suitable for broadcasting.
type Snapshot struct {
	Code         string
	Status       Status
	HostID       string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Participants []ParticipantView
	Queue        []Candidate
	Matches      []Match
	Search       *SearchConfig
}

// Snapshot copies the session's public state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Code:      s.Code,
		Status:    s.Status,
		HostID:    s.HostID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		Matches:   s.Matches(),
	}
	for _, p := range s.Participants() {
		snap.Participants = append(snap.Participants, ParticipantView{
			ID:            p.ID,
			Name:          p.Name,
			IsHost:        p.IsHost,
			Connected:     p.Connected,
			LastSeenIndex: p.LastSeenIndex,
		})
	}
	snap.Queue = s.QueueItems()
	if s.Search != nil {
		snap.Search = s.Search.clone()
	}
	return snap
}

// QueueItems resolves the queue into candidates.
func (s *Session) QueueItems() []Candidate {
	out := make([]Candidate, 0, len(s.queue))
	for _, id := range s.queue {
		if c, ok := s.Candidate(id); ok {
			out = append(out, c)
		}
	}
	return out
}

func sortedKeys(m map[string]time.Time) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := m[keys[i]], m[keys[j]]
		if ti.Equal(tj) {
			return keys[i] < keys[j]
		}
		return ti.Before(tj)
	})
	return keys
}
