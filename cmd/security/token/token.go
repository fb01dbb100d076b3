package token

import "time"

// Payload is the verified content of a session token.
type Payload struct {
	SessionCode   string
	ParticipantID string
	IsHost        bool
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Service is the single token capability surface used by the session layer and the gateway.
type Service interface {
	// Issue signs a session token for (code, participantID).
	Issue(code, participantID string, isHost bool, now time.Time) (string, error)
	// Verify checks signature and expiry. Any failure is ErrInvalidToken.
	Verify(token string, now time.Time) (Payload, error)
	// Authorize verifies token and requires it to belong to code.
	Authorize(token, code string, now time.Time) (Payload, error)

	// ResourceToken returns the opaque token authorizing a fetch of name.
	ResourceToken(name string) string
	// VerifyResource reports whether tok authorizes name.
	VerifyResource(name, tok string) bool
}

// Manager composes a session signer and a resource signer.
type Manager struct {
	*SessionSigner
	*ResourceSigner
}

var _ Service = (*Manager)(nil)

// NewManager builds a Manager from cfg, generating ephemeral keys when none are configured.
// Ephemeral keys are acceptable because sessions do not survive a restart either.
func NewManager(cfg Config) (*Manager, error) {
	cfg = cfg.normalized()

	sessions, err := NewSessionSigner(cfg)
	if err != nil {
		return nil, err
	}
	resources, err := NewResourceSigner(cfg.ResourceSecret)
	if err != nil {
		return nil, err
	}
	return &Manager{SessionSigner: sessions, ResourceSigner: resources}, nil
}
