package realtime

import (
	"sync"
	"time"

	"huddle/cmd/internal/ratelimit"
)

// opFlood labels flood denials in audit records and metrics.
const opFlood ratelimit.Op = "flood"

// floodGuard is a per-connection sliding-window event counter.
type floodGuard struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

func newFloodGuard(limit int, window time.Duration) *floodGuard {
	if limit <= 0 {
		limit = defaultFloodEvents
	}
	if window <= 0 {
		window = defaultFloodWindow
	}
	return &floodGuard{
		events: make([]time.Time, 0, limit+8),
		limit:  limit,
		window: window,
	}
}

// Allow records an event at now. When the window is full it reports how long
// until the oldest event leaves it.
func (f *floodGuard) Allow(now time.Time) (bool, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cut := now.Add(-f.window)
	kept := f.events[:0]
	for _, t := range f.events {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	f.events = kept

	if len(f.events) >= f.limit {
		return false, f.events[0].Sub(cut)
	}
	f.events = append(f.events, now)
	return true, 0
}
