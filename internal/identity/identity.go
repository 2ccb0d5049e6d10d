package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vaultgate/vaultgate/internal/config"
)

// ErrUnauthenticated is returned when the identity provider rejects the
// presented credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier authenticates the front-door credential and yields the principal.
// Authentication itself belongs to the external identity provider; this is
// only the adapter seam.
type Verifier interface {
	Verify(ctx context.Context, credential string) (string, error)
}

// HTTPVerifier introspects credentials against the identity provider's
// endpoint.
type HTTPVerifier struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPVerifier creates a verifier backed by the configured IdP endpoint
func NewHTTPVerifier(cfg config.IdentityConfig) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Verify introspects a credential and returns the authenticated principal
func (v *HTTPVerifier) Verify(ctx context.Context, credential string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create introspection request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var out struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode identity response: %w", err)
	}

	if out.UserID == "" {
		return "", ErrUnauthenticated
	}

	return out.UserID, nil
}

// StaticVerifier maps opaque credentials to principals from configuration.
// Local development only.
type StaticVerifier struct {
	principals map[string]string
}

// NewStaticVerifier creates a verifier over a fixed credential map
func NewStaticVerifier(principals map[string]string) *StaticVerifier {
	return &StaticVerifier{principals: principals}
}

// Verify looks the credential up in the static map
func (v *StaticVerifier) Verify(ctx context.Context, credential string) (string, error) {
	principal, ok := v.principals[credential]
	if !ok {
		return "", ErrUnauthenticated
	}
	return principal, nil
}

// FromConfig picks the verifier implementation for the given configuration
func FromConfig(cfg config.IdentityConfig) Verifier {
	if cfg.Endpoint != "" {
		return NewHTTPVerifier(cfg)
	}
	return NewStaticVerifier(cfg.Principals)
}
