package usecase

import (
	"context"
	"fmt"
	"strings"

	"callstack/internal/domain"
	"callstack/internal/ports"
)

// SessionGuard hands out a freshly refreshed credential for every upload.
// It deliberately keeps no token of its own between calls.
type SessionGuard struct {
	identity ports.IdentityProvider
}

func NewSessionGuard(identity ports.IdentityProvider) *SessionGuard {
	return &SessionGuard{identity: identity}
}

// FreshCredential forces a refresh against the identity provider. Any refresh
// failure is terminal for the cycle and reported as ErrSessionExpired.
func (g *SessionGuard) FreshCredential(ctx context.Context) (domain.Credential, error) {
	session, err := g.identity.RefreshSession(ctx)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %v", domain.ErrSessionExpired, err)
	}
	if session == nil || strings.TrimSpace(session.AccessToken) == "" {
		return domain.Credential{}, domain.ErrSessionExpired
	}
	return domain.Credential{AccessToken: session.AccessToken, ExpiresAt: session.ExpiresAt}, nil
}
