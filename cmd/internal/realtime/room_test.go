package realtime

import (
	"sync"
	"testing"
	"time"

	v1 "huddle/shared/contracts/realtime/v1"
)

func TestRoom_BroadcastSkipsSenderAndClosed(t *testing.T) {
	t.Parallel()

	r := NewRoom(discard(), "ABCDEF")
	a := NewClient("a", "1.1.1.1", 4)
	b := NewClient("b", "1.1.1.1", 4)
	c := NewClient("c", "1.1.1.1", 4)
	for _, cl := range []*Client{a, b, c} {
		r.Join(cl)
	}
	c.Close()

	if dropped := r.Broadcast(v1.Envelope{Type: v1.TypeSessionStarted}, "a"); dropped != 0 {
		t.Fatalf("dropped=%d want=0", dropped)
	}
	if len(a.Send) != 0 || len(b.Send) != 1 || len(c.Send) != 0 {
		t.Fatalf("queued a=%d b=%d c=%d want=0/1/0", len(a.Send), len(b.Send), len(c.Send))
	}
}

func TestRoom_BroadcastNeverBlocks(t *testing.T) {
	t.Parallel()

	r := NewRoom(discard(), "ABCDEF")
	slow := NewClient("slow", "", 1)
	r.Join(slow)

	done := make(chan int)
	go func() {
		dropped := 0
		for i := 0; i < 10; i++ {
			dropped += r.Broadcast(v1.Envelope{Type: v1.TypeQueueUpdated}, "")
		}
		done <- dropped
	}()

	select {
	case dropped := <-done:
		if dropped != 9 {
			t.Fatalf("dropped=%d want=9", dropped)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast blocked on a full queue")
	}
}

func TestRoom_LeaveKeepsClientOpen(t *testing.T) {
	t.Parallel()

	r := NewRoom(discard(), "ABCDEF")
	a := NewClient("a", "", 4)
	r.Join(a)

	if got := r.Leave("a"); got != a {
		t.Fatalf("Leave returned %v", got)
	}
	if r.Len() != 0 {
		t.Fatalf("len=%d want=0", r.Len())
	}
	select {
	case <-a.Done():
		t.Fatalf("client closed by Leave")
	default:
	}
	if got := r.Leave("a"); got != nil {
		t.Fatalf("second Leave returned %v", got)
	}
}

func TestRoom_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	t.Parallel()

	r := NewRoom(discard(), "ABCDEF")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		cl := NewClient(NewConnID(), "", 8)
		go func() {
			defer wg.Done()
			r.Join(cl)
			r.Leave(cl.ConnID)
		}()
		go func() {
			defer wg.Done()
			r.Broadcast(v1.Envelope{Type: v1.TypeMatchFound}, "")
		}()
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Fatalf("len=%d want=0", r.Len())
	}
}

func TestHub_RoomLifecycle(t *testing.T) {
	t.Parallel()

	h := NewHub(discard())
	r1 := h.Room("ABCDEF")
	if r2 := h.Room("ABCDEF"); r2 != r1 {
		t.Fatalf("Room returned a different handle")
	}
	if h.Lookup("ZZZZZZ") != nil {
		t.Fatalf("Lookup created a room")
	}

	r1.Join(NewClient("a", "", 1))
	if h.DropIfEmpty("ABCDEF") {
		t.Fatalf("dropped a non-empty room")
	}
	r1.Leave("a")
	if !h.DropIfEmpty("ABCDEF") || h.Len() != 0 {
		t.Fatalf("empty room not dropped, len=%d", h.Len())
	}

	h.Room("QRSTUV")
	if got := h.Drop("QRSTUV"); got == nil || h.Lookup("QRSTUV") != nil {
		t.Fatalf("Drop did not remove the room")
	}
}

func TestClient_Binding(t *testing.T) {
	t.Parallel()

	c := NewClient("a", "", 1)
	if _, _, ok := c.Identity(); ok {
		t.Fatalf("fresh client is bound")
	}
	c.Bind("ABCDEF", "p1", true)
	if c.UnbindIf("QRSTUV") {
		t.Fatalf("UnbindIf cleared a different session")
	}
	code, pid, isHost, ok := c.Unbind()
	if !ok || code != "ABCDEF" || pid != "p1" || !isHost {
		t.Fatalf("Unbind=%s/%s/%v/%v", code, pid, isHost, ok)
	}
	if _, _, _, ok := c.Unbind(); ok {
		t.Fatalf("second Unbind reported a binding")
	}
}
