package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"huddle/cmd/internal/session"
)

// Outcome classifies an expansion.
type Outcome string

const (
	// OutcomeAdded means new candidates were appended.
	OutcomeAdded Outcome = "added"
	// OutcomeNoneFound means nothing new was found below the ceiling radius. Expanding again may help.
	OutcomeNoneFound Outcome = "none_found"
	// OutcomeMaxCandidates means the session holds its maximum number of candidates.
	OutcomeMaxCandidates Outcome = "max_candidates"
	// OutcomeMaxRadius means the search already reached the ceiling radius before this call.
	OutcomeMaxRadius Outcome = "max_radius"
	// OutcomeExhausted means the ceiling radius was searched and nothing new exists.
	OutcomeExhausted Outcome = "exhausted"
)

// Terminal reports whether further expansion cannot add anything.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeMaxCandidates, OutcomeMaxRadius, OutcomeExhausted:
		return true
	default:
		return false
	}
}

// Result describes one expansion.
type Result struct {
	Added   []session.Candidate
	Radius  float64
	Outcome Outcome

	// QueueLen is the queue length after merging.
	QueueLen int

	// Completed is set when this expansion moved the session to completed.
	Completed bool
}

// Controller runs queue expansions against a candidate source.
type Controller struct {
	log    *slog.Logger
	store  *session.Store
	source CandidateSource
	cfg    Config
}

// New constructs a Controller.
func New(log *slog.Logger, store *session.Store, source CandidateSource, cfg Config) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{log: log, store: store, source: source, cfg: cfg.normalized()}
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// NewSearch builds a search config for a new session. radius <= 0 selects the
// configured initial radius.
func (c *Controller) NewSearch(origin session.Location, filters []string, radius float64) session.SearchConfig {
	if radius <= 0 {
		radius = c.cfg.InitialRadius
	}
	return session.SearchConfig{
		Origin:        origin,
		Filters:       append([]string(nil), filters...),
		Radius:        radius,
		MaxRadius:     math.Max(c.cfg.MaxRadius, radius),
		MaxCandidates: c.cfg.MaxCandidates,
	}
}

// InitialCandidates fetches the first batch for a session that does not exist yet.
func (c *Controller) InitialCandidates(ctx context.Context, search session.SearchConfig) ([]session.Candidate, error) {
	if c.source == nil {
		return nil, ErrNoSource
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	items, err := c.source.Fetch(ctx, FetchRequest{
		Location: search.Origin,
		Filters:  search.Filters,
		Radius:   search.Radius,
		Limit:    search.MaxCandidates,
	})
	if err != nil && len(items) == 0 {
		return nil, fmt.Errorf("initial candidates: %w", err)
	}
	if err != nil {
		c.log.Warn("queue.fetch.partial", "err", err, "items", len(items))
	}
	return items, nil
}

type plan struct {
	req        FetchRequest
	nextRadius float64
	maxRadius  float64
}

// Expand widens the session's search by one step and merges new candidates.
func (c *Controller) Expand(ctx context.Context, code string, now time.Time) (Result, error) {
	var (
		p    plan
		done *Result
	)
	err := c.store.With(code, now, func(s *session.Session) error {
		if s.Status != session.StatusActive {
			return session.ErrNotActive
		}
		if r, terminal := c.precheck(s); terminal {
			done = &r
			return nil
		}
		if c.source == nil {
			return ErrNoSource
		}
		if !s.BeginExpand() {
			return ErrExpansionInFlight
		}
		p = c.plan(s)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if done != nil {
		return *done, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	items, fetchErr := c.source.Fetch(fetchCtx, p.req)
	cancel()

	var res Result
	err = c.store.With(code, now, func(s *session.Session) error {
		defer s.EndExpand()

		if fetchErr != nil && len(items) == 0 {
			return fmt.Errorf("%w: %w", ErrFetch, fetchErr)
		}
		res = c.merge(s, p, items)
		return nil
	})
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			c.log.Warn("queue.expand.failed", "code", code, "err", err)
		}
		return Result{}, err
	}
	if fetchErr != nil {
		c.log.Warn("queue.fetch.partial", "code", code, "err", fetchErr, "items", len(items))
	}

	c.log.Info("queue.expanded",
		"code", code,
		"added", len(res.Added),
		"radius", res.Radius,
		"outcome", string(res.Outcome),
		"queue", res.QueueLen,
	)
	return res, nil
}

func (c *Controller) precheck(s *session.Session) (Result, bool) {
	base := Result{QueueLen: s.QueueLen()}
	if s.Search == nil {
		base.Outcome = OutcomeExhausted
		base.Completed = complete(s)
		return base, true
	}
	base.Radius = s.Search.Radius
	switch {
	case s.CandidateCount() >= s.Search.MaxCandidates:
		base.Outcome = OutcomeMaxCandidates
	case s.Search.Radius >= s.Search.MaxRadius:
		base.Outcome = OutcomeMaxRadius
	default:
		return Result{}, false
	}
	base.Completed = complete(s)
	return base, true
}

func (c *Controller) plan(s *session.Session) plan {
	search := s.Search
	next := math.Min(search.Radius+c.cfg.RadiusStep, search.MaxRadius)

	accepts, rejects := s.CategoryCounts()
	return plan{
		req: FetchRequest{
			Location:    search.Origin,
			Filters:     append([]string(nil), search.Filters...),
			Radius:      next,
			Exclude:     s.KnownIDs(),
			Preferences: BuildPreferences(accepts, rejects, s.ParticipantCount()),
			Limit:       search.MaxCandidates - s.CandidateCount(),
		},
		nextRadius: next,
		maxRadius:  search.MaxRadius,
	}
}

func (c *Controller) merge(s *session.Session, p plan, items []session.Candidate) Result {
	// Monotonic even if a concurrent path already moved it further.
	s.Search.Radius = math.Max(s.Search.Radius, p.nextRadius)

	added := s.AppendCandidates(p.req.Preferences.Apply(items), s.Search.MaxCandidates)

	res := Result{Added: added, Radius: s.Search.Radius, QueueLen: s.QueueLen()}
	switch {
	case s.CandidateCount() >= s.Search.MaxCandidates:
		res.Outcome = OutcomeMaxCandidates
	case len(added) > 0:
		res.Outcome = OutcomeAdded
	case s.Search.Radius >= p.maxRadius:
		res.Outcome = OutcomeExhausted
	default:
		res.Outcome = OutcomeNoneFound
	}
	if res.Outcome.Terminal() && len(added) == 0 {
		res.Completed = complete(s)
	}
	return res
}

// complete marks the session completed when nobody connected has anything left to swipe.
func complete(s *session.Session) bool {
	if s.Status != session.StatusActive {
		return false
	}
	n := s.QueueLen()
	for _, p := range s.Connected() {
		if p.LastSeenIndex < n {
			return false
		}
	}
	s.Status = session.StatusCompleted
	return true
}
