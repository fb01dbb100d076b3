package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"huddle/cmd/internal/audit"
	"huddle/cmd/internal/capacity"
	"huddle/cmd/internal/matching"
	"huddle/cmd/internal/metrics"
	"huddle/cmd/internal/queue"
	"huddle/cmd/internal/ratelimit"
	"huddle/cmd/internal/session"
	"huddle/cmd/security/token"
	v1 "huddle/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

// Deps are the session components the gateway drives.
type Deps struct {
	Store    *session.Store
	Capacity *capacity.Manager
	Engine   *matching.Engine
	Queue    *queue.Controller
	Tokens   token.Service
	Limiter  *ratelimit.Limiter

	// Optional.
	Audit   *audit.Logger
	Metrics *metrics.Metrics
}

// WSGateway is the websocket entrypoint for huddle sessions.
//
// It enforces origin policy, subprotocol selection, per-connection flood
// limits and heartbeats, and routes validated events to the session engine.
type WSGateway struct {
	log *slog.Logger
	cfg Config
	hub *Hub

	store    *session.Store
	capacity *capacity.Manager
	engine   *matching.Engine
	queue    *queue.Controller
	tokens   token.Service
	limiter  *ratelimit.Limiter
	audit    *audit.Logger
	metrics  *metrics.Metrics

	// Derived for websocket.Accept, which authorizes same-host origins by
	// default but needs OriginPatterns for cross-origin requests.
	originPatterns []string
}

// NewWSGateway constructs a gateway and registers it for session removals.
func NewWSGateway(log *slog.Logger, cfg Config, deps Deps) (*WSGateway, error) {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Store == nil || deps.Capacity == nil || deps.Engine == nil || deps.Queue == nil || deps.Tokens == nil {
		return nil, errors.New("realtime: store, capacity, engine, queue and tokens are required")
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(ratelimit.DefaultConfig())
	}

	cfg = cfg.normalized()
	g := &WSGateway{
		log:            log,
		cfg:            cfg,
		hub:            NewHub(log),
		store:          deps.Store,
		capacity:       deps.Capacity,
		engine:         deps.Engine,
		queue:          deps.Queue,
		tokens:         deps.Tokens,
		limiter:        deps.Limiter,
		audit:          deps.Audit,
		metrics:        deps.Metrics,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
	g.capacity.SetOnRemoved(g.onSessionRemoved)
	return g, nil
}

// Hub exposes the room registry.
func (g *WSGateway) Hub() *Hub { return g.hub }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a websocket and runs the event loop.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(NewConnID(), clientIP(r, g.cfg.TrustProxy), g.cfg.SendQueue)
	g.metrics.ConnOpened()
	defer g.metrics.ConnClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send; the connection
	// leaves its room before the client is closed.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.detach(client, time.Now().UTC())
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	flood := newFloodGuard(g.cfg.FloodEvents, g.cfg.FloodWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", client.ConnID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", client.ConnID, "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, v1.ErrCodeBadJSON, "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", client.ConnID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if ok, retry := flood.Allow(now); !ok {
			g.rejectRateLimited(ctx, client, "", ratelimit.RateLimitError{Op: opFlood, RetryAfter: retry})
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, v1.ErrCodeBadEnvelope, err.Error())
			continue readLoop
		}
		if !v1.IsInbound(env.Type) {
			g.trySendError(ctx, client, v1.ErrCodeUnsupported, fmt.Sprintf("unsupported type: %s", env.Type))
			continue readLoop
		}

		g.handle(ctx, client, env, now)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
}

// ---- session binding ----

// attach binds client to (code, participantID) and joins the session's room.
//
// The room is joined before the store attach so a removal racing with the
// attach still reaches this client through the room.
func (g *WSGateway) attach(client *Client, code, participantID string, now time.Time) (session.Attachment, error) {
	if oc, op, ok := client.Identity(); ok && (oc != code || op != participantID) {
		g.detach(client, now)
	}

	room := g.hub.Room(code)
	room.Join(client)

	att, err := g.store.Attach(code, participantID, client.ConnID, now)
	if err != nil {
		room.Leave(client.ConnID)
		g.hub.DropIfEmpty(code)
		return session.Attachment{}, err
	}
	client.Bind(code, participantID, att.IsHost)

	if att.Replaced != "" {
		if old := room.Leave(att.Replaced); old != nil {
			old.UnbindIf(code)
		}
		g.log.Info("session.conn.replaced", "code", code, "participant_id", participantID)
	}
	return att, nil
}

// detach releases client's participant. A host leaving starts the grace timer.
func (g *WSGateway) detach(client *Client, now time.Time) {
	code, _, _, ok := client.Unbind()
	if !ok {
		return
	}
	if room := g.hub.Lookup(code); room != nil {
		room.Leave(client.ConnID)
	}

	info, ok := g.store.HandleDisconnect(client.ConnID, now)
	if !ok {
		return
	}

	if snap, err := g.store.Get(info.Code, now); err == nil {
		if p, found := findParticipant(snap, info.ParticipantID); found {
			g.broadcast(info.Code, v1.TypeParticipantDisconnected, v1.ParticipantPayload{Participant: participantView(p)}, "")
		}
	}

	if info.IsHost {
		if g.store.ScheduleHostGrace(info.Code, func(r session.Removed) { g.capacity.Report(r) }) {
			g.log.Info("session.host.grace", "code", info.Code, "grace", g.store.Config().HostGrace)
		}
	}
}

// onSessionRemoved tells the room the session ended and releases it.
func (g *WSGateway) onSessionRemoved(r session.Removed) {
	room := g.hub.Drop(r.Code)
	if room == nil {
		return
	}
	env, err := newEnvelope(v1.TypeSessionEnded, v1.SessionEndedPayload{Code: r.Code, Reason: r.Reason}, time.Now().UTC())
	if err != nil {
		g.log.Error("ws.encode.fail", "type", v1.TypeSessionEnded, "err", err)
	} else {
		room.Broadcast(env, "")
	}
	for _, m := range room.Members() {
		m.UnbindIf(r.Code)
	}
}

// ---- send helpers ----

func (g *WSGateway) broadcast(code, typ string, payload any, skip session.ConnID) {
	room := g.hub.Lookup(code)
	if room == nil {
		return
	}
	env, err := newEnvelope(typ, payload, time.Now().UTC())
	if err != nil {
		g.log.Error("ws.encode.fail", "type", typ, "err", err)
		return
	}
	if dropped := room.Broadcast(env, skip); dropped > 0 {
		g.log.Warn("room.broadcast.drop", "code", code, "type", typ, "dropped", dropped)
	}
}

func (g *WSGateway) send(ctx context.Context, client *Client, typ string, payload any) bool {
	env, err := newEnvelope(typ, payload, time.Now().UTC())
	if err != nil {
		g.log.Error("ws.encode.fail", "type", typ, "err", err)
		return false
	}
	return g.enqueue(ctx, client, env)
}

func (g *WSGateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	_ = g.send(ctx, client, v1.TypeError, v1.ErrorPayload{Code: code, Message: msg})
}

func (g *WSGateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload any, ts time.Time) (v1.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(ts),
		TS:      ts,
		Payload: raw,
	}, nil
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return readErrBadJSON
	}
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		// Host match ignores scheme and port.
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns extracts the hosts websocket.Accept should authorize.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// clientIP is the per-origin key for budgets and quotas.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
