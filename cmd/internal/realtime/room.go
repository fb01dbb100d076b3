package realtime

import (
	"log/slog"
	"sync"

	"huddle/cmd/internal/session"
	v1 "huddle/shared/contracts/realtime/v1"
)

// Room is the broadcast fanout for one session's connections.
//
// Join and Leave are safe under concurrent Broadcast. Broadcast never blocks:
// a member whose queue is full misses the envelope.
type Room struct {
	log  *slog.Logger
	Code string

	mu      sync.RWMutex
	members map[session.ConnID]*Client
}

// NewRoom constructs an empty room.
func NewRoom(log *slog.Logger, code string) *Room {
	return &Room{
		log:     log,
		Code:    code,
		members: make(map[session.ConnID]*Client),
	}
}

// Join adds a client to the room.
func (r *Room) Join(client *Client) {
	if r == nil || client == nil || client.ConnID == "" {
		return
	}

	r.mu.Lock()
	r.members[client.ConnID] = client
	n := len(r.members)
	r.mu.Unlock()

	r.log.Debug("room.member.join", "code", r.Code, "conn_id", client.ConnID, "members", n)
}

// Leave removes a connection from the room and returns its client.
// The client itself stays open; it may join another session.
func (r *Room) Leave(connID session.ConnID) *Client {
	if r == nil || connID == "" {
		return nil
	}

	r.mu.Lock()
	cl := r.members[connID]
	delete(r.members, connID)
	r.mu.Unlock()

	if cl != nil {
		r.log.Debug("room.member.leave", "code", r.Code, "conn_id", connID)
	}
	return cl
}

// Len returns the number of members.
func (r *Room) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns a copy of the current membership.
func (r *Room) Members() []*Client {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Broadcast fans env out to every member except skip. It returns the number
// of members the envelope was dropped for.
func (r *Room) Broadcast(env v1.Envelope, skip session.ConnID) int {
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	dropped := 0
	for id, m := range r.members {
		if m == nil || id == skip {
			continue
		}

		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.Send <- env:
		default:
			dropped++
		}
	}
	return dropped
}
