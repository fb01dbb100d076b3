// Package audit emits security-relevant records.
//
// Every record goes to the structured logger under an "audit.*" event name.
// An optional Sink (Postgres in production) receives the same records through
// a bounded queue that drops when full. Nothing in this package returns an
// error to its caller, blocks it, or panics.
package audit
