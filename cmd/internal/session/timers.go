package session

import (
	"sync"
	"time"
)

// Timers holds cancellable one-shot tasks keyed by session code.
//
// A scheduled task fires at most once. Rescheduling or cancelling a key
// invalidates the previous task even if its timer already expired and the
// callback is waiting for the lock.
type Timers struct {
	mu      sync.Mutex
	seq     uint64
	pending map[string]scheduled
}

type scheduled struct {
	timer *time.Timer
	gen   uint64
}

// NewTimers constructs an empty timer set.
func NewTimers() *Timers {
	return &Timers{pending: make(map[string]scheduled)}
}

// Schedule runs fn after d unless the key is cancelled or rescheduled first.
func (t *Timers) Schedule(key string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.pending[key]; ok {
		old.timer.Stop()
	}

	t.seq++
	gen := t.seq
	timer := time.AfterFunc(d, func() {
		t.mu.Lock()
		cur, ok := t.pending[key]
		if !ok || cur.gen != gen {
			t.mu.Unlock()
			return
		}
		delete(t.pending, key)
		t.mu.Unlock()

		fn()
	})
	t.pending[key] = scheduled{timer: timer, gen: gen}
}

// Cancel stops the task for key. It reports whether a task was pending.
func (t *Timers) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.pending[key]
	if !ok {
		return false
	}
	cur.timer.Stop()
	delete(t.pending, key)
	return true
}

// Pending reports whether a task is scheduled for key.
func (t *Timers) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key]
	return ok
}

// StopAll cancels every pending task.
func (t *Timers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, cur := range t.pending {
		cur.timer.Stop()
		delete(t.pending, k)
	}
}
