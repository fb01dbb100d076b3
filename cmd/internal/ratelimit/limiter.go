package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Op is an operation category with its own budget.
type Op string

const (
	OpCreate    Op = "create"
	OpJoin      Op = "join"
	OpSwipe     Op = "swipe"
	OpReconnect Op = "reconnect"
	OpExpand    Op = "expand"

	opPenalty Op = "penalty"
)

// PerSession reports whether the budget is additionally keyed by session code.
func (o Op) PerSession() bool { return o == OpSwipe || o == OpExpand }

// Decision is the result of a budget check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type key struct {
	op     Op
	origin string
	code   string
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type budget struct {
	limit rate.Limit
	burst int
}

// Limiter tracks budgets for every (operation, origin[, session]) key.
type Limiter struct {
	cfg     Config
	budgets map[Op]budget

	mu      sync.Mutex
	buckets map[key]*bucket
}

// New constructs a Limiter.
func New(cfg Config) *Limiter {
	cfg = cfg.normalized()
	perMinute := func(n int) budget {
		return budget{limit: rate.Limit(float64(n) / time.Minute.Seconds()), burst: n}
	}
	return &Limiter{
		cfg: cfg,
		budgets: map[Op]budget{
			OpCreate:    perMinute(cfg.CreatePerMinute),
			OpJoin:      perMinute(cfg.JoinPerMinute),
			OpSwipe:     perMinute(cfg.SwipePerMinute),
			OpReconnect: perMinute(cfg.ReconnectPerMinute),
			OpExpand:    perMinute(cfg.ExpandPerMinute),
			opPenalty: {
				limit: rate.Limit(float64(cfg.PenaltyBudget) / cfg.PenaltyWindow.Seconds()),
				burst: cfg.PenaltyBudget,
			},
		},
		buckets: make(map[key]*bucket),
	}
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config { return l.cfg }

func (l *Limiter) bucketLocked(k key, now time.Time) *bucket {
	b := l.buckets[k]
	if b == nil {
		bg := l.budgets[k.op]
		b = &bucket{lim: rate.NewLimiter(bg.limit, bg.burst)}
		l.buckets[k] = b
	}
	b.lastSeen = now
	return b
}

// Allow consumes one unit of op's budget for origin. code is ignored for
// operations that are not per-session. A denied call consumes nothing.
func (l *Limiter) Allow(op Op, origin, code string, now time.Time) Decision {
	if _, ok := l.budgets[op]; !ok || op == opPenalty {
		return Decision{Allowed: true}
	}
	k := key{op: op, origin: origin}
	if op.PerSession() {
		k.code = code
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketLocked(k, now)
	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{RetryAfter: l.cfg.PenaltyWindow}
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return Decision{RetryAfter: d}
	}
	return Decision{Allowed: true}
}

// Check is Allow returning a RateLimitError on denial.
func (l *Limiter) Check(op Op, origin, code string, now time.Time) error {
	d := l.Allow(op, origin, code, now)
	if d.Allowed {
		return nil
	}
	return RateLimitError{Op: op, RetryAfter: d.RetryAfter}
}

// CheckPenalty reports whether origin still has penalty budget. It consumes nothing.
func (l *Limiter) CheckPenalty(origin string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketLocked(key{op: opPenalty, origin: origin}, now)
	tokens := b.lim.TokensAt(now)
	if tokens >= 1 {
		return Decision{Allowed: true}
	}
	wait := time.Duration((1 - tokens) / float64(b.lim.Limit()) * float64(time.Second))
	if wait <= 0 {
		wait = time.Second
	}
	return Decision{RetryAfter: wait}
}

// Penalize charges one failed attempt to origin's penalty budget.
func (l *Limiter) Penalize(origin string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketLocked(key{op: opPenalty, origin: origin}, now)
	b.lim.AllowN(now, 1)
}

// Prune drops refilled buckets untouched for longer than the idle TTL and
// returns how many were removed. A bucket that is still draining is kept so
// pruning never forgives debt.
func (l *Limiter) Prune(now time.Time) int {
	cut := now.Add(-l.cfg.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, b := range l.buckets {
		if b.lastSeen.Before(cut) && b.lim.TokensAt(now) >= float64(b.lim.Burst()) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
