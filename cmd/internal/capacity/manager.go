// Package capacity keeps the session registry within its global ceiling and
// removes abandoned sessions.
package capacity

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"huddle/cmd/internal/audit"
	"huddle/cmd/internal/metrics"
	"huddle/cmd/internal/session"
)

// Pruner drops idle state on each sweep (rate-limit buckets).
type Pruner interface {
	Prune(now time.Time) int
}

// Manager enforces the session ceiling and runs the periodic sweep.
type Manager struct {
	log     *slog.Logger
	store   *session.Store
	cfg     Config
	audit   *audit.Logger
	metrics *metrics.Metrics
	pruners []Pruner

	mu        sync.RWMutex
	onRemoved func(session.Removed)
}

// Option customizes a Manager.
type Option func(*Manager)

func WithAudit(a *audit.Logger) Option { return func(m *Manager) { m.audit = a } }

func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithPruner registers state that is pruned on every sweep.
func WithPruner(p Pruner) Option {
	return func(m *Manager) {
		if p != nil {
			m.pruners = append(m.pruners, p)
		}
	}
}

// New constructs a Manager.
func New(log *slog.Logger, store *session.Store, cfg Config, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{log: log, store: store, cfg: cfg.normalized()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// SetOnRemoved installs the callback notified of every removal (the transport
// uses it to tell connected clients the session ended).
func (m *Manager) SetOnRemoved(fn func(session.Removed)) {
	m.mu.Lock()
	m.onRemoved = fn
	m.mu.Unlock()
}

// EvictCount is the number of sessions evicted when the ceiling is met.
func (m *Manager) EvictCount() int {
	n := int(math.Ceil(float64(m.cfg.MaxSessions) * m.cfg.EvictFraction))
	if n < 1 {
		n = 1
	}
	return n
}

// CreateSession makes room if the global ceiling is met, then creates the session.
func (m *Manager) CreateSession(in session.CreateInput) (session.Created, error) {
	if m.store.Len() >= m.cfg.MaxSessions {
		evicted := m.store.EvictLRU(m.EvictCount())
		if len(evicted) > 0 {
			m.log.Warn("capacity.evict", "evicted", len(evicted), "max_sessions", m.cfg.MaxSessions)
		}
		m.Report(evicted...)
	}

	out, err := m.store.Create(in)
	if err != nil {
		return session.Created{}, err
	}
	m.metrics.SessionCreated()
	m.metrics.SetSessions(m.store.Len())
	m.audit.Lifecycle("created", out.Snapshot.Code, "")
	return out, nil
}

// EndSession removes code and reports the removal.
func (m *Manager) EndSession(code, reason string) (session.Removed, bool) {
	r, ok := m.store.EndSession(code, reason)
	if ok {
		m.Report(r)
	}
	return r, ok
}

// Sweep removes expired and idle sessions and prunes registered state.
func (m *Manager) Sweep(now time.Time) []session.Removed {
	removed := m.store.Sweep(now, m.cfg.IdleTimeout)
	m.Report(removed...)

	pruned := 0
	for _, p := range m.pruners {
		pruned += p.Prune(now)
	}
	if len(removed) > 0 || pruned > 0 {
		m.log.Info("capacity.sweep", "removed", len(removed), "pruned", pruned, "sessions", m.store.Len())
	}
	return removed
}

// Report emits audit records and metrics for removals and notifies the transport.
func (m *Manager) Report(removed ...session.Removed) {
	if len(removed) == 0 {
		return
	}
	m.mu.RLock()
	fn := m.onRemoved
	m.mu.RUnlock()

	for _, r := range removed {
		m.audit.Lifecycle("ended", r.Code, r.Reason)
		m.metrics.SessionRemoved(r.Reason)
		if fn != nil {
			fn(r)
		}
	}
	m.metrics.SetSessions(m.store.Len())
}

// Run sweeps every SweepInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	t := time.NewTicker(m.cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			m.Sweep(now.UTC())
		}
	}
}
