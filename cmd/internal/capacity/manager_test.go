package capacity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"huddle/cmd/internal/metrics"
	"huddle/cmd/internal/session"
)

type stubIssuer struct{}

func (stubIssuer) Issue(code, pid string, _ bool, _ time.Time) (string, error) {
	return code + ":" + pid, nil
}

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore(t *testing.T, cfg session.Config) *session.Store {
	t.Helper()
	st := session.NewStore(discard(), cfg, stubIssuer{})
	t.Cleanup(func() { st.Close() })
	return st
}

type removals struct {
	mu  sync.Mutex
	got []session.Removed
}

func (r *removals) add(x session.Removed) {
	r.mu.Lock()
	r.got = append(r.got, x)
	r.mu.Unlock()
}

func (r *removals) list() []session.Removed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Removed(nil), r.got...)
}

func TestEvictCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		max  int
		frac float64
		want int
	}{
		{max: 1000, frac: 0.1, want: 100},
		{max: 5, frac: 0.1, want: 1},
		{max: 15, frac: 0.1, want: 2},
		{max: 10, frac: 0, want: 1},
	}
	for _, tc := range cases {
		m := New(discard(), nil, Config{MaxSessions: tc.max, EvictFraction: tc.frac})
		if got := m.EvictCount(); got != tc.want {
			t.Fatalf("EvictCount(max=%d frac=%v)=%d want=%d", tc.max, tc.frac, got, tc.want)
		}
	}
}

func TestCreateSession_EvictsLeastRecentlyTouched(t *testing.T) {
	t.Parallel()

	scfg := session.DefaultConfig()
	scfg.MaxPerOrigin = 0
	st := newStore(t, scfg)
	mt := metrics.New()
	m := New(discard(), st, Config{MaxSessions: 3, EvictFraction: 0.1}, WithMetrics(mt))

	var rem removals
	m.SetOnRemoved(rem.add)

	var codes []string
	for i := 0; i < 3; i++ {
		out, err := m.CreateSession(session.CreateInput{HostName: "host", Now: t0.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		codes = append(codes, out.Snapshot.Code)
	}
	// A connected session is still evictable.
	out0, _ := st.Get(codes[0], t0)
	if _, err := st.Attach(codes[0], out0.HostID, "c0", t0); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if _, err := m.CreateSession(session.CreateInput{HostName: "host", Now: t0.Add(time.Hour)}); err != nil {
		t.Fatalf("CreateSession at ceiling: %v", err)
	}
	if st.Len() != 3 {
		t.Fatalf("Len=%d want=3", st.Len())
	}

	got := rem.list()
	if len(got) != 1 || got[0].Code != codes[0] || got[0].Reason != session.ReasonEvicted {
		t.Fatalf("unexpected removals: %+v", got)
	}
	if len(got[0].Conns) != 1 {
		t.Fatalf("evicted session must report its connections")
	}

	want := `
# HELP huddle_sessions_created_total Sessions created.
# TYPE huddle_sessions_created_total counter
huddle_sessions_created_total 4
# HELP huddle_sessions_removed_total Sessions removed, by reason.
# TYPE huddle_sessions_removed_total counter
huddle_sessions_removed_total{reason="evicted"} 1
`
	if err := testutil.GatherAndCompare(mt.Registry(), strings.NewReader(want),
		"huddle_sessions_created_total", "huddle_sessions_removed_total"); err != nil {
		t.Fatalf("metrics: %v", err)
	}
}

func TestCreateSession_PropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	st := newStore(t, session.DefaultConfig())
	m := New(discard(), st, DefaultConfig())

	if _, err := m.CreateSession(session.CreateInput{HostName: "", Now: t0}); !errors.Is(err, session.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestSweep_RemovesAbandonedAndPrunes(t *testing.T) {
	t.Parallel()

	st := newStore(t, session.DefaultConfig())
	p := &countingPruner{}
	m := New(discard(), st, Config{IdleTimeout: 10 * time.Minute}, WithPruner(p))

	var rem removals
	m.SetOnRemoved(rem.add)

	abandoned, _ := m.CreateSession(session.CreateInput{HostName: "a", Now: t0})
	occupied, _ := m.CreateSession(session.CreateInput{HostName: "b", Now: t0})
	_, _ = st.Attach(occupied.Snapshot.Code, occupied.ParticipantID, "c", t0)

	removed := m.Sweep(t0.Add(20 * time.Minute))
	if len(removed) != 1 || removed[0].Code != abandoned.Snapshot.Code || removed[0].Reason != session.ReasonIdle {
		t.Fatalf("unexpected sweep: %+v", removed)
	}
	if len(rem.list()) != 1 {
		t.Fatalf("OnRemoved not notified")
	}
	if p.calls() != 1 {
		t.Fatalf("pruner calls=%d want=1", p.calls())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	st := newStore(t, session.DefaultConfig())
	p := &countingPruner{}
	m := New(discard(), st, Config{SweepInterval: 5 * time.Millisecond}, WithPruner(p))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.calls() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweep loop did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestEndSession_Reports(t *testing.T) {
	t.Parallel()

	st := newStore(t, session.DefaultConfig())
	m := New(discard(), st, DefaultConfig())
	var rem removals
	m.SetOnRemoved(rem.add)

	out, _ := m.CreateSession(session.CreateInput{HostName: "a", Now: t0})
	if _, ok := m.EndSession(out.Snapshot.Code, session.ReasonHostTimeout); !ok {
		t.Fatalf("EndSession: not removed")
	}
	if _, ok := m.EndSession(out.Snapshot.Code, session.ReasonHostTimeout); ok {
		t.Fatalf("second EndSession must report false")
	}
	if got := rem.list(); len(got) != 1 || got[0].Reason != session.ReasonHostTimeout {
		t.Fatalf("unexpected removals: %+v", got)
	}
}

type countingPruner struct {
	mu sync.Mutex
	n  int
}

func (p *countingPruner) Prune(time.Time) int {
	p.mu.Lock()
	p.n++
	p.mu.Unlock()
	return 0
}

func (p *countingPruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}
