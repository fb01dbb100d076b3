package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"huddle/cmd/internal/session"
)

type stubIssuer struct{}

func (stubIssuer) Issue(code, pid string, _ bool, _ time.Time) (string, error) {
	return code + ":" + pid, nil
}

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig() Config {
	return Config{InitialRadius: 1000, RadiusStep: 1000, MaxRadius: 3000, MaxCandidates: 5, FetchTimeout: time.Second}
}

type recorder struct {
	mu   sync.Mutex
	reqs []FetchRequest
	fn   func(FetchRequest) ([]session.Candidate, error)
}

func (r *recorder) Fetch(_ context.Context, req FetchRequest) ([]session.Candidate, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	if r.fn == nil {
		return nil, nil
	}
	return r.fn(req)
}

func (r *recorder) calls() []FetchRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FetchRequest(nil), r.reqs...)
}

func items(ids ...string) []session.Candidate {
	var out []session.Candidate
	for _, id := range ids {
		out = append(out, session.Candidate{ID: id, Name: id, Categories: []string{"food"}})
	}
	return out
}

// activeSession creates a started session holding initial candidates.
func activeSession(t *testing.T, ctl *Controller, st *session.Store, initial ...string) (code, hostID string) {
	t.Helper()

	search := ctl.NewSearch(session.Location{Lat: 52.52, Lng: 13.40}, nil, 0)
	out, err := st.Create(session.CreateInput{HostName: "host", Candidates: items(initial...), Search: &search, Now: t0})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.Attach(out.Snapshot.Code, out.ParticipantID, "conn-host", t0); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if _, err := st.Start(out.Snapshot.Code, out.ParticipantID, t0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return out.Snapshot.Code, out.ParticipantID
}

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	st := session.NewStore(discard(), session.DefaultConfig(), stubIssuer{})
	t.Cleanup(func() { st.Close() })
	return st
}

func TestExpand_RadiusMonotonicUntilTerminal(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	src := &recorder{}
	ctl := New(discard(), st, src, testConfig())
	code, _ := activeSession(t, ctl, st, "a")

	want := []struct {
		radius  float64
		outcome Outcome
	}{
		{radius: 2000, outcome: OutcomeNoneFound},
		{radius: 3000, outcome: OutcomeExhausted},
		{radius: 3000, outcome: OutcomeMaxRadius},
	}
	prev := 0.0
	for i, w := range want {
		res, err := ctl.Expand(context.Background(), code, t0)
		if err != nil {
			t.Fatalf("Expand #%d: %v", i, err)
		}
		if res.Radius != w.radius || res.Outcome != w.outcome {
			t.Fatalf("Expand #%d: radius=%v outcome=%q want %v,%q", i, res.Radius, res.Outcome, w.radius, w.outcome)
		}
		if res.Radius < prev {
			t.Fatalf("radius decreased: %v -> %v", prev, res.Radius)
		}
		prev = res.Radius
	}
	if got := len(src.calls()); got != 2 {
		t.Fatalf("source calls=%d want=2 (no fetch once at max radius)", got)
	}
}

func TestExpand_AppendsOnlyUnknownWithinCeiling(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	src := &recorder{fn: func(FetchRequest) ([]session.Candidate, error) {
		return items("a", "b", "c", "b", "d", "e", "f"), nil
	}}
	ctl := New(discard(), st, src, testConfig())
	code, _ := activeSession(t, ctl, st, "a", "b")

	res, err := ctl.Expand(context.Background(), code, t0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(res.Added) != 3 || res.Added[0].ID != "c" {
		t.Fatalf("added=%+v want c,d,e", res.Added)
	}
	if res.Outcome != OutcomeMaxCandidates || !res.Outcome.Terminal() {
		t.Fatalf("outcome=%q want=%q", res.Outcome, OutcomeMaxCandidates)
	}
	if res.QueueLen != 5 {
		t.Fatalf("QueueLen=%d want=5", res.QueueLen)
	}

	req := src.calls()[0]
	if len(req.Exclude) != 2 || req.Limit != 3 || req.Radius != 2000 {
		t.Fatalf("unexpected request: %+v", req)
	}

	res, err = ctl.Expand(context.Background(), code, t0)
	if err != nil || res.Outcome != OutcomeMaxCandidates || len(res.Added) != 0 {
		t.Fatalf("second Expand: res=%+v err=%v", res, err)
	}
}

func TestExpand_FetchErrorLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	boom := errors.New("upstream down")
	src := &recorder{fn: func(FetchRequest) ([]session.Candidate, error) { return nil, boom }}
	ctl := New(discard(), st, src, testConfig())
	code, _ := activeSession(t, ctl, st, "a")

	if _, err := ctl.Expand(context.Background(), code, t0); !errors.Is(err, boom) || !errors.Is(err, ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	snap, _ := st.Get(code, t0)
	if snap.Search.Radius != 1000 || len(snap.Queue) != 1 {
		t.Fatalf("state changed: radius=%v queue=%d", snap.Search.Radius, len(snap.Queue))
	}

	// The in-flight marker is released after a failure.
	src.fn = nil
	if _, err := ctl.Expand(context.Background(), code, t0); err != nil {
		t.Fatalf("Expand after failure: %v", err)
	}
}

func TestExpand_PartialResultsMerged(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	src := &recorder{fn: func(FetchRequest) ([]session.Candidate, error) {
		return items("b"), context.DeadlineExceeded
	}}
	ctl := New(discard(), st, src, testConfig())
	code, _ := activeSession(t, ctl, st, "a")

	res, err := ctl.Expand(context.Background(), code, t0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if res.Outcome != OutcomeAdded || len(res.Added) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExpand_SerializesConcurrentExpansions(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	src := &recorder{fn: func(FetchRequest) ([]session.Candidate, error) {
		close(entered)
		<-release
		return items("b"), nil
	}}
	ctl := New(discard(), st, src, testConfig())
	code, _ := activeSession(t, ctl, st, "a")

	errc := make(chan error, 1)
	go func() {
		_, err := ctl.Expand(context.Background(), code, t0)
		errc <- err
	}()
	<-entered

	// The session stays usable while the fetch is outstanding.
	if _, err := st.Get(code, t0); err != nil {
		t.Fatalf("Get during fetch: %v", err)
	}
	if _, err := ctl.Expand(context.Background(), code, t0); !errors.Is(err, ErrExpansionInFlight) {
		t.Fatalf("expected ErrExpansionInFlight, got %v", err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first Expand: %v", err)
	}
}

func TestExpand_RequiresActiveSession(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctl := New(discard(), st, &recorder{}, testConfig())
	out, _ := st.Create(session.CreateInput{HostName: "host", Now: t0})

	if _, err := ctl.Expand(context.Background(), out.Snapshot.Code, t0); !errors.Is(err, session.ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if _, err := ctl.Expand(context.Background(), "ZZZZZZ", t0); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpand_CompletesWhenEverythingWasSwiped(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	cfg := testConfig()
	cfg.MaxRadius = 2000
	ctl := New(discard(), st, &recorder{}, cfg)
	code, host := activeSession(t, ctl, st, "a")

	_ = st.With(code, t0, func(s *session.Session) error {
		s.Participant(host).LastSeenIndex = s.QueueLen()
		return nil
	})

	res, err := ctl.Expand(context.Background(), code, t0)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if res.Outcome != OutcomeExhausted || !res.Completed {
		t.Fatalf("unexpected result: %+v", res)
	}
	snap, _ := st.Get(code, t0)
	if snap.Status != session.StatusCompleted {
		t.Fatalf("status=%q want=%q", snap.Status, session.StatusCompleted)
	}
}

func TestExpand_PassesPreferences(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	src := &recorder{}
	ctl := New(discard(), st, src, testConfig())
	code, host := activeSession(t, ctl, st, "a")

	_ = st.With(code, t0, func(s *session.Session) error {
		s.MarkCategories(session.Reject, host, []string{"sushi"})
		s.MarkCategories(session.Accept, host, []string{"pizza"})
		return nil
	})

	if _, err := ctl.Expand(context.Background(), code, t0); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	prefs := src.calls()[0].Preferences
	if fmt.Sprint(prefs.Liked) != "[pizza]" || fmt.Sprint(prefs.Disliked) != "[sushi]" {
		t.Fatalf("unexpected preferences: %+v", prefs)
	}
}

func TestInitialCandidates(t *testing.T) {
	t.Parallel()

	src := &recorder{fn: func(req FetchRequest) ([]session.Candidate, error) {
		return items("a", "b"), nil
	}}
	ctl := New(discard(), newTestStore(t), src, testConfig())

	search := ctl.NewSearch(session.Location{Lat: 1, Lng: 1}, []string{"food"}, 0)
	if search.Radius != 1000 || search.MaxRadius != 3000 || search.MaxCandidates != 5 {
		t.Fatalf("unexpected search: %+v", search)
	}
	got, err := ctl.InitialCandidates(context.Background(), search)
	if err != nil || len(got) != 2 {
		t.Fatalf("InitialCandidates: %v len=%d", err, len(got))
	}

	wide := ctl.NewSearch(session.Location{Lat: 1, Lng: 1}, nil, 5000)
	if wide.MaxRadius != 5000 {
		t.Fatalf("max radius must not be below the requested radius, got %v", wide.MaxRadius)
	}

	if _, err := New(discard(), newTestStore(t), nil, testConfig()).InitialCandidates(context.Background(), search); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}
