package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vaultgate/vaultgate/internal/config"
)

// Actions a capability token can grant. The set is closed: a token scoped to
// anything else fails verification.
const (
	ActionUpload = "upload"
	ActionStream = "stream"
)

var (
	// ErrInvalidToken is returned for malformed tokens, bad signatures,
	// unknown key IDs and unknown actions.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a structurally valid token is past
	// its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnknownAction is returned by Issue for actions outside the closed set.
	ErrUnknownAction = errors.New("unknown action")
)

// Claims represents capability token claims. A token binds one principal to
// one action for a bounded window; it never carries a byte-size grant because
// size is unknown at issue time.
type Claims struct {
	Principal string `json:"principal"`
	Action    string `json:"action"`
	jwt.RegisteredClaims
}

// Service issues and verifies capability tokens. Tokens are stateless: nothing
// is persisted server-side, the signature is the only trust anchor.
type Service struct {
	keys      map[string][]byte
	activeKID string
	maxTTL    map[string]time.Duration
	now       func() time.Time
}

// NewService creates a token service from configuration. Every configured key
// verifies; only the active key signs.
func NewService(cfg config.TokenConfig) (*Service, error) {
	if len(cfg.Keys) == 0 {
		return nil, errors.New("no signing keys configured")
	}
	if _, ok := cfg.Keys[cfg.ActiveKeyID]; !ok {
		return nil, fmt.Errorf("active key %q not present in key set", cfg.ActiveKeyID)
	}

	keys := make(map[string][]byte, len(cfg.Keys))
	for kid, secret := range cfg.Keys {
		keys[kid] = []byte(secret)
	}

	return &Service{
		keys:      keys,
		activeKID: cfg.ActiveKeyID,
		maxTTL: map[string]time.Duration{
			ActionUpload: cfg.UploadTTL,
			ActionStream: cfg.StreamTTL,
		},
		now: time.Now,
	}, nil
}

// Issue creates a signed token granting one action to one principal. The
// requested ttl is clamped to the per-action cap so upload windows stay short.
func (s *Service) Issue(principal, action string, ttl time.Duration) (string, error) {
	cap, ok := s.maxTTL[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if ttl > cap || ttl < 0 {
		ttl = cap
	}

	now := s.now()
	claims := Claims{
		Principal: principal,
		Action:    action,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = s.activeKID

	signed, err := tok.SignedString(s.keys[s.activeKID])
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates a token, returning its claims. The caller is
// responsible for comparing Claims.Action against the action its endpoint
// requires.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		secret, ok := s.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Action != ActionUpload && claims.Action != ActionStream {
		return nil, fmt.Errorf("%w: action %q", ErrInvalidToken, claims.Action)
	}
	if claims.Principal == "" {
		return nil, fmt.Errorf("%w: missing principal", ErrInvalidToken)
	}

	return claims, nil
}
