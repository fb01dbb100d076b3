package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Action names.
const (
	ActionAuthFailed       = "audit.auth.failed"
	ActionRateLimited      = "audit.rate_limited"
	ActionLifecycle        = "audit.lifecycle"
	ActionReconnect        = "audit.reconnect"
	ActionValidationFailed = "audit.validation.failed"
)

// Record is one audit entry.
type Record struct {
	Action string
	Code   string
	Origin string
	At     time.Time
	Meta   map[string]any
}

// Sink persists records.
type Sink interface {
	Write(ctx context.Context, r Record) error
}

// Logger emits audit records. A nil *Logger is valid and discards everything.
type Logger struct {
	log *slog.Logger
	now func() time.Time

	sink         Sink
	queue        chan Record
	writeTimeout time.Duration
	dropped      atomic.Uint64
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// Option customizes a Logger.
type Option func(*Logger)

// WithSink forwards records to sink through a queue of size buffer.
func WithSink(sink Sink, buffer int) Option {
	return func(l *Logger) {
		if sink == nil {
			return
		}
		if buffer <= 0 {
			buffer = 256
		}
		l.sink = sink
		l.queue = make(chan Record, buffer)
	}
}

// WithClock replaces the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// New constructs a Logger and starts the sink writer if a sink is configured.
func New(log *slog.Logger, opts ...Option) *Logger {
	if log == nil {
		log = slog.Default()
	}
	l := &Logger{
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
		writeTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.sink != nil {
		l.wg.Add(1)
		go l.drain()
	}
	return l
}

// AuthFailed records a rejected token or a failed join.
func (l *Logger) AuthFailed(op, origin, code, reason string) {
	l.emit(ActionAuthFailed, code, origin, map[string]any{"op": op, "reason": reason})
}

// RateLimited records a budget trip.
func (l *Logger) RateLimited(op, origin, code string, retryAfter time.Duration) {
	l.emit(ActionRateLimited, code, origin, map[string]any{
		"op":             op,
		"retry_after_ms": retryAfter.Milliseconds(),
	})
}

// Lifecycle records a session state transition (created, started, completed, ended).
func (l *Logger) Lifecycle(event, code, reason string) {
	meta := map[string]any{"event": event}
	if reason != "" {
		meta["reason"] = reason
	}
	l.emit(ActionLifecycle, code, "", meta)
}

// Reconnect records the outcome of a reconnect attempt.
func (l *Logger) Reconnect(origin, code, participantID string, ok bool, reason string) {
	meta := map[string]any{"participant_id": participantID, "ok": ok}
	if reason != "" {
		meta["reason"] = reason
	}
	l.emit(ActionReconnect, code, origin, meta)
}

// ValidationFailed records an input rejected at the boundary.
func (l *Logger) ValidationFailed(op, origin, field, value string) {
	l.emit(ActionValidationFailed, "", origin, map[string]any{
		"op":    op,
		"field": field,
		"value": value,
	})
}

// Dropped returns the number of records the sink queue rejected.
func (l *Logger) Dropped() uint64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

// Close stops accepting sink records and waits for queued ones to be written.
func (l *Logger) Close() {
	if l == nil || l.queue == nil {
		return
	}
	l.closeOnce.Do(func() { close(l.queue) })
	l.wg.Wait()
}

func (l *Logger) emit(action, code, origin string, meta map[string]any) {
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("audit.panic", "action", action, "panic", r)
		}
	}()

	rec := Record{
		Action: action,
		Code:   Sanitize(code),
		Origin: Sanitize(origin),
		At:     l.now(),
		Meta:   make(map[string]any, len(meta)),
	}
	attrs := []any{"code", rec.Code, "origin", rec.Origin}
	for k, v := range meta {
		if s, ok := v.(string); ok {
			v = Sanitize(s)
		}
		rec.Meta[k] = v
		attrs = append(attrs, k, v)
	}
	l.log.Info(action, attrs...)

	if l.queue == nil {
		return
	}
	l.enqueue(rec)
}

func (l *Logger) enqueue(rec Record) {
	// Sending on a closed queue panics; emit's recover turns that into a log line.
	select {
	case l.queue <- rec:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.log.Warn("audit.sink.drop", "dropped", n)
		}
	}
}

func (l *Logger) drain() {
	defer l.wg.Done()
	for rec := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
		if err := l.sink.Write(ctx, rec); err != nil {
			l.log.Error("audit.insert.fail", "err", err, "action", rec.Action)
		}
		cancel()
	}
}
