package realtime

import (
	"log/slog"
	"sync"
)

// Hub owns the rooms of live sessions, keyed by session code.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// Room returns the room for code, creating it on first use.
func (h *Hub) Room(code string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[code]; ok {
		return r
	}
	r := NewRoom(h.log, code)
	h.rooms[code] = r
	return r
}

// Lookup returns the room for code without creating it.
func (h *Hub) Lookup(code string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[code]
}

// Drop removes the room for code and returns it.
func (h *Hub) Drop(code string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rooms[code]
	delete(h.rooms, code)
	return r
}

// DropIfEmpty removes the room for code when nobody is in it.
func (h *Hub) DropIfEmpty(code string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[code]
	if !ok || r.Len() > 0 {
		return false
	}
	delete(h.rooms, code)
	return true
}

// Len returns the number of rooms.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
