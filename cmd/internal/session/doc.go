// Package session is the authoritative in-memory registry of huddle sessions.
//
// A Session is only reachable through Store: callers run their read-decide-mutate
// step inside Store.With, which holds that session's lock for the duration of
// the callback and touches its LRU clock. Operations on different sessions never
// contend on the same lock; the registry itself, the connection index and the
// per-origin counters sit behind a store-level lock, and LRU clocks behind a
// separate narrow lock.
//
// Lock order is always store -> session -> clocks.
package session
