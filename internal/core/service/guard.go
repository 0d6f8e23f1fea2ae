package service

import (
	"context"
	"fmt"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// Authenticator resolves a bearer token to an authenticated identity or fails
// with an error wrapping domain.ErrUnauthenticated. Nothing is cached between
// calls; every request re-derives its state from the presented token.
type Authenticator func(ctx context.Context, token string) (*domain.Identity, error)

// RequireRole wraps authn so that an authenticated identity lacking role is
// rejected with domain.ErrForbidden. Authentication failures pass through
// unchanged, keeping the two outcomes distinct.
func RequireRole(authn Authenticator, role domain.Role) Authenticator {
	return func(ctx context.Context, token string) (*domain.Identity, error) {
		identity, err := authn(ctx, token)
		if err != nil {
			return nil, err
		}
		if !identity.Roles.Has(role) {
			return nil, fmt.Errorf("%w: requires role %s", domain.ErrForbidden, role)
		}
		return identity, nil
	}
}
