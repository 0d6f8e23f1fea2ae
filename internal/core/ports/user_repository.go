package ports

import (
	"context"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// UserRepository is the credential store. Lookups match the identifier
// against username OR email and return domain.ErrUserNotFound on absence.
// Failures other than the explicit conflict/absence cases are *domain.StorageError.
type UserRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	FindCredentials(ctx context.Context, identifier string) (*domain.UserCredentials, error)
	// Create inserts a new row with DefaultRoles. A uniqueness violation on
	// username or email is reported as domain.ErrUserExists.
	Create(ctx context.Context, username, email, passwordHash string) (int64, error)
	// AddRole and RemoveRole are idempotent. Both return domain.ErrUserNotFound
	// when userID does not exist.
	AddRole(ctx context.Context, userID int64, role domain.Role) error
	RemoveRole(ctx context.Context, userID int64, role domain.Role) error
}

// AuditRepository persists audit events.
type AuditRepository interface {
	InsertEvent(ctx context.Context, event *domain.AuthEvent) error
}
