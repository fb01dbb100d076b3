package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()

	cfg := DefaultConfig()
	cfg.TTL = ttl
	cfg.ResourceSecret = strings.Repeat("r", MinResourceSecretBytes)

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, time.Hour)
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	tok, err := m.Issue("ABC234", "01HPARTICIPANT", true, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	p, err := m.Verify(tok, now.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.SessionCode != "ABC234" || p.ParticipantID != "01HPARTICIPANT" || !p.IsHost {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if !p.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("ExpiresAt=%v want=%v", p.ExpiresAt, now.Add(time.Hour))
	}
}

func TestVerify_ExpiredIsInvalid(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, time.Hour)
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	tok, err := m.Issue("ABC234", "p1", false, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = m.Verify(tok, now.Add(2*time.Hour))
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_ForeignKeyIsInvalid(t *testing.T) {
	t.Parallel()

	a := newTestManager(t, time.Hour)
	b := newTestManager(t, time.Hour)
	now := time.Now().UTC()

	tok, err := a.Issue("ABC234", "p1", false, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := a.Verify("v4.public.garbage", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
	if _, err := a.Verify("", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty, got %v", err)
	}
}

func TestAuthorize_BindsSessionCode(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, time.Hour)
	now := time.Now().UTC()

	tok, err := m.Issue("AAAAAA", "x", false, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Authorize(tok, "AAAAAA", now); err != nil {
		t.Fatalf("Authorize same session: %v", err)
	}
	if _, err := m.Authorize(tok, "BBBBBB", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for other session, got %v", err)
	}
}

func TestNewSessionSigner_BadKey(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SecretKeyHex = "zz"
	if _, err := NewSessionSigner(cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestNewSessionSigner_ConfiguredKeyIsStable(t *testing.T) {
	t.Parallel()

	first, err := NewSessionSigner(DefaultConfig())
	if err != nil {
		t.Fatalf("NewSessionSigner: %v", err)
	}

	cfg := DefaultConfig()
	cfg.SecretKeyHex = first.secret.ExportHex()
	second, err := NewSessionSigner(cfg)
	if err != nil {
		t.Fatalf("NewSessionSigner(configured): %v", err)
	}

	now := time.Now().UTC()
	tok, err := first.Issue("ABCDEF", "p", false, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := second.Verify(tok, now); err != nil {
		t.Fatalf("expected token from same key to verify: %v", err)
	}
}

func TestResourceToken(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, time.Hour)

	tok := m.ResourceToken("places/abc/photos/1")
	if tok == "" {
		t.Fatalf("empty resource token")
	}
	if tok != m.ResourceToken("places/abc/photos/1") {
		t.Fatalf("resource token must be deterministic")
	}
	if !m.VerifyResource("places/abc/photos/1", tok) {
		t.Fatalf("expected resource token to verify")
	}
	if m.VerifyResource("places/abc/photos/2", tok) {
		t.Fatalf("token must not verify for another resource")
	}
	if m.VerifyResource("places/abc/photos/1", tok+"x") {
		t.Fatalf("tampered token must not verify")
	}
	if m.VerifyResource("places/abc/photos/1", "") {
		t.Fatalf("empty token must not verify")
	}
}

func TestNewResourceSigner_ShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewResourceSigner("short"); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
}
