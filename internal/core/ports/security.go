package ports

import (
	"context"
	"time"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// PasswordHasher produces salted one-way digests and verifies against them.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// TokenService issues and validates signed bearer tokens.
type TokenService interface {
	// Issue signs identity with an expiry of now+ttl. ttl <= 0 selects the default.
	Issue(identity domain.Identity, ttl time.Duration) (string, error)
	// Validate returns domain.ErrInvalidToken or domain.ErrExpiredToken on failure.
	Validate(token string) (*domain.Identity, error)
}

// LoginLimiter throttles repeated failed logins per identifier.
type LoginLimiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
	RecordFailure(ctx context.Context, identifier string) error
	Reset(ctx context.Context, identifier string) error
}

// AuditPublisher accepts audit events without blocking the caller.
type AuditPublisher interface {
	Publish(event domain.AuthEvent)
}
