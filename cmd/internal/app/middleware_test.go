package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWithCORS(t *testing.T) {
	t.Parallel()

	cfg := Config{
		CORSAllowedOrigins: []string{"https://app.huddle.example", "http://127.0.0.1:*"},
		CORSMaxAgeSeconds:  600,
	}

	cases := []struct {
		name       string
		method     string
		target     string
		origin     string
		headers    map[string]string
		wantStatus int
		wantNext   bool
		wantAllow  string
		wantMaxAge string
	}{
		{
			name:       "photo preflight",
			method:     http.MethodOptions,
			target:     "/photos?ref=c1.jpg&sig=abc",
			origin:     "https://app.huddle.example",
			headers:    map[string]string{"Access-Control-Request-Method": http.MethodGet},
			wantStatus: http.StatusNoContent,
			wantAllow:  "https://app.huddle.example",
			wantMaxAge: "600",
		},
		{
			name:       "photo get from dev port",
			method:     http.MethodGet,
			target:     "/photos?ref=c1.jpg&sig=abc",
			origin:     "http://127.0.0.1:5173",
			wantStatus: http.StatusOK,
			wantNext:   true,
			wantAllow:  "http://127.0.0.1:5173",
		},
		{
			name:       "foreign origin on photos",
			method:     http.MethodGet,
			target:     "/photos?ref=c1.jpg&sig=abc",
			origin:     "https://evil.example",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "websocket upgrade left to gateway",
			method:     http.MethodGet,
			target:     "/ws",
			origin:     "https://evil.example",
			headers:    map[string]string{"Upgrade": "websocket", "Connection": "Upgrade"},
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
		{
			name:       "no origin",
			method:     http.MethodGet,
			target:     "/readyz",
			wantStatus: http.StatusOK,
			wantNext:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			called := false
			h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}), cfg, discardLogger())

			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("status=%d want=%d", rr.Code, tc.wantStatus)
			}
			if called != tc.wantNext {
				t.Fatalf("next called=%v want=%v", called, tc.wantNext)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("allow-origin=%q want=%q", got, tc.wantAllow)
			}
			if got := rr.Header().Get("Access-Control-Max-Age"); got != tc.wantMaxAge {
				t.Fatalf("max-age=%q want=%q", got, tc.wantMaxAge)
			}
		})
	}
}

func TestWithCORS_EmptyAllowlistPassesThrough(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := WithCORS(next, Config{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/photos", nil)
	req.Header.Set("Origin", "https://anything.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot || rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("status=%d allow=%q", rr.Code, rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestWithRequestLogging_OmitsQuery(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}), log)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/photos?ref=c1.jpg&sig=secret-sig", nil))

	if strings.Contains(buf.String(), "secret-sig") {
		t.Fatalf("signature leaked into request log: %s", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if rec["path"] != "/photos" || rec["status"] != float64(403) || rec["status_class"] != "4xx" || rec["result"] != "client_error" {
		t.Fatalf("record=%v", rec)
	}
	if rec["level"] != "WARN" || rec["bytes"].(float64) <= 0 {
		t.Fatalf("level=%v bytes=%v", rec["level"], rec["bytes"])
	}
}

// The full middleware chain must keep http.Hijacker reachable for the upgrade.
func TestMiddlewareChain_WebsocketUpgrade(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	cfg := Config{CORSAllowedOrigins: []string{"https://app.huddle.example"}}

	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Hijacker); !ok {
			t.Errorf("response writer lost http.Hijacker")
			http.Error(w, "no hijack", http.StatusInternalServerError)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = c.CloseNow() }()

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		_ = c.Write(ctx, typ, data)
		_ = c.Close(websocket.StatusNormalClosure, "")
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	srv := httptest.NewServer(WithSecurityHeaders(WithCORS(WithRequestLogging(mux, log), cfg, log)))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("upgrade response nosniff=%q", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("upgrade response frame options=%q", got)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil || string(data) != "ping" {
		t.Fatalf("echo=%q err=%v", data, err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func TestRequestLogMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		wantLevel  slog.Level
		wantResult string
		wantClass  string
	}{
		{status: http.StatusSwitchingProtocols, wantLevel: slog.LevelInfo, wantResult: "success", wantClass: "1xx"},
		{status: http.StatusOK, wantLevel: slog.LevelInfo, wantResult: "success", wantClass: "2xx"},
		{status: http.StatusNotImplemented, wantLevel: slog.LevelError, wantResult: "server_error", wantClass: "5xx"},
		{status: http.StatusForbidden, wantLevel: slog.LevelWarn, wantResult: "client_error", wantClass: "4xx"},
		{status: 42, wantLevel: slog.LevelInfo, wantResult: "success", wantClass: "unknown"},
	}

	for _, tc := range cases {
		level, result := requestLogMeta(tc.status)
		if level != tc.wantLevel || result != tc.wantResult {
			t.Fatalf("status=%d level=%v result=%q want=%v %q", tc.status, level, result, tc.wantLevel, tc.wantResult)
		}
		if got := statusClass(tc.status); got != tc.wantClass {
			t.Fatalf("statusClass(%d)=%q want=%q", tc.status, got, tc.wantClass)
		}
	}
}
