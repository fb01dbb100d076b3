// Package main provides a CI-friendly WebSocket smoke test for huddle.
//
// It validates:
//   - handshake + subprotocol selection
//   - create_session grant with a non-empty queue
//   - join by code and participant_joined fanout
//   - host start
//   - two accepts on the first candidate produce match_found on both clients
//   - reconnect with the host token
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "huddle/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name string
	conn *websocket.Conn

	participantID string
	token         string

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		lat     = flag.Float64("lat", 48.8566, "Search latitude")
		lng     = flag.Float64("lng", 2.3522, "Search longitude")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	host := mustConnect(root, "host", *wsURL, *origin, *timeout)
	defer closeWS(host.conn)

	created := mustCreate(root, host, v1.Location{Lat: *lat, Lng: *lng}, *timeout)
	code := created.Session.Code
	if len(created.Session.Queue) == 0 {
		fatalf("create: empty queue at %.4f,%.4f (is a catalog configured?)", *lat, *lng)
	}
	first := created.Session.Queue[0].ID

	guest := mustConnect(root, "guest", *wsURL, *origin, *timeout)
	defer closeWS(guest.conn)

	mustJoin(root, guest, strings.ToLower(code), *timeout)
	host.mustReadUntilType(root, v1.TypeParticipantJoined, *timeout)

	if *verbose {
		fmt.Printf("session %s: host=%s guest=%s first=%s\n", code, host.participantID, guest.participantID, first)
	}

	mustWrite(root, host, v1.TypeStartSession, v1.StartSessionPayload{Token: host.token}, *timeout)
	host.mustReadUntilType(root, v1.TypeSessionStarted, *timeout)
	guest.mustReadUntilType(root, v1.TypeSessionStarted, *timeout)

	mustWrite(root, host, v1.TypeSwipe, v1.SwipePayload{Token: host.token, CandidateID: first, Decision: "accept"}, *timeout)
	mustWrite(root, guest, v1.TypeSwipe, v1.SwipePayload{Token: guest.token, CandidateID: first, Decision: "accept"}, *timeout)

	for _, c := range []*smokeClient{host, guest} {
		env := c.mustReadUntilType(root, v1.TypeMatchFound, *timeout)
		var p v1.MatchFoundPayload
		mustDecode(env, &p, c.name)
		if p.Match.CandidateID != first {
			fatalf("match candidate mismatch (%s): got=%q want=%q", c.name, p.Match.CandidateID, first)
		}
	}

	// Reconnect the host on a fresh socket with its token.
	again := mustConnect(root, "host-reconnect", *wsURL, *origin, *timeout)
	defer closeWS(again.conn)
	mustWrite(root, again, v1.TypeReconnectSession, v1.ReconnectSessionPayload{Token: host.token}, *timeout)
	env := again.mustReadUntilType(root, v1.TypeSessionReconnected, *timeout)
	var grant v1.SessionGrantPayload
	mustDecode(env, &grant, again.name)
	if grant.ParticipantID != host.participantID || len(grant.Session.Matches) != 1 {
		fatalf("reconnect grant mismatch: pid=%q matches=%d", grant.ParticipantID, len(grant.Session.Matches))
	}

	fmt.Printf("OK: code=%s host=%s guest=%s match=%s\n", code, host.participantID, guest.participantID, first)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch (%s): got=%q want=%q", name, got, v1.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func mustCreate(parent context.Context, c *smokeClient, loc v1.Location, stepTimeout time.Duration) v1.SessionGrantPayload {
	mustWrite(parent, c, v1.TypeCreateSession, v1.CreateSessionPayload{Name: "smoke-host", Location: &loc}, stepTimeout)
	return c.mustGrant(parent, v1.TypeSessionCreated, stepTimeout)
}

func mustJoin(parent context.Context, c *smokeClient, code string, stepTimeout time.Duration) v1.SessionGrantPayload {
	mustWrite(parent, c, v1.TypeJoinSession, v1.JoinSessionPayload{Code: code, Name: "smoke-guest"}, stepTimeout)
	return c.mustGrant(parent, v1.TypeSessionJoined, stepTimeout)
}

func (c *smokeClient) mustGrant(parent context.Context, typ string, stepTimeout time.Duration) v1.SessionGrantPayload {
	env := c.mustReadUntilType(parent, typ, stepTimeout)

	var p v1.SessionGrantPayload
	mustDecode(env, &p, c.name)
	if strings.TrimSpace(p.ParticipantID) == "" || strings.TrimSpace(p.Token) == "" {
		fatalf("%s grant missing participant_id or token (%s)", typ, c.name)
	}
	c.participantID = p.ParticipantID
	c.token = p.Token
	return p
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			if mt != websocket.MessageText {
				c.fail(fmt.Errorf("unsupported message type: %v", mt))
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}

			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

// mustReadUntilType skips unrelated broadcasts and fails fast on error envelopes.
func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
		}
	}
}

func mustWrite(parent context.Context, c *smokeClient, typ string, payload any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      fmt.Sprintf("%s-%s-%d", c.name, typ, time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: mustJSON(payload),
	}
	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write %s failed (%s): %v", typ, c.name, err)
	}
}

func mustDecode(env v1.Envelope, dst any, name string) {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		fatalf("unmarshal %s payload (%s): %v", env.Type, name, err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
