package token

import (
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

const (
	claimSession     = "sc"
	claimParticipant = "pid"
	claimHost        = "host"
)

// SessionSigner issues and verifies PASETO v4.public session tokens.
type SessionSigner struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewSessionSigner builds a signer from cfg.
func NewSessionSigner(cfg Config) (*SessionSigner, error) {
	cfg = cfg.normalized()

	var secret paseto.V4AsymmetricSecretKey
	if hexKey := strings.TrimSpace(cfg.SecretKeyHex); hexKey != "" {
		k, err := paseto.NewV4AsymmetricSecretKeyFromHex(hexKey)
		if err != nil {
			return nil, ErrConfig
		}
		secret = k
	} else {
		secret = paseto.NewV4AsymmetricSecretKey()
	}

	return &SessionSigner{
		issuer:    cfg.Issuer,
		ttl:       cfg.TTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

// PublicKeyHex exposes the verification key.
func (s *SessionSigner) PublicKeyHex() string {
	return s.public.ExportHex()
}

// TTL returns the token lifetime.
func (s *SessionSigner) TTL() time.Duration { return s.ttl }

// Issue signs a token for (code, participantID).
func (s *SessionSigner) Issue(code, participantID string, isHost bool, now time.Time) (string, error) {
	if code == "" || participantID == "" {
		return "", ErrInvalidToken
	}

	tok := paseto.NewToken()
	tok.SetIssuer(s.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(now.Add(s.ttl))
	tok.SetString(claimSession, code)
	tok.SetString(claimParticipant, participantID)
	if err := tok.Set(claimHost, isHost); err != nil {
		return "", err
	}

	return tok.V4Sign(s.secret, nil), nil
}

// Verify validates signature, issuer and validity window at now.
func (s *SessionSigner) Verify(token string, now time.Time) (Payload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Payload{}, ErrInvalidToken
	}

	// A fresh parser per call; rules must not accumulate across verifications.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(s.issuer))
	p.AddRule(paseto.ValidAt(now.Add(s.clockSkew)))

	parsed, err := p.ParseV4Public(s.public, token, nil)
	if err != nil {
		return Payload{}, ErrInvalidToken
	}

	code, err := parsed.GetString(claimSession)
	if err != nil || code == "" {
		return Payload{}, ErrInvalidToken
	}
	pid, err := parsed.GetString(claimParticipant)
	if err != nil || pid == "" {
		return Payload{}, ErrInvalidToken
	}
	var host bool
	if err := parsed.Get(claimHost, &host); err != nil {
		return Payload{}, ErrInvalidToken
	}

	iat, _ := parsed.GetIssuedAt()
	exp, _ := parsed.GetExpiration()

	return Payload{
		SessionCode:   code,
		ParticipantID: pid,
		IsHost:        host,
		IssuedAt:      iat,
		ExpiresAt:     exp,
	}, nil
}

// Authorize verifies token and requires it to have been issued for code.
func (s *SessionSigner) Authorize(token, code string, now time.Time) (Payload, error) {
	p, err := s.Verify(token, now)
	if err != nil {
		return Payload{}, err
	}
	if code == "" || p.SessionCode != code {
		return Payload{}, ErrInvalidToken
	}
	return p, nil
}
