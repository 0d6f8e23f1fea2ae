package ports

import (
	"context"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// AuthService covers login, registration and token resolution.
type AuthService interface {
	Login(ctx context.Context, identifier, password string) (string, error)
	Register(ctx context.Context, in domain.RegisterInput) (int64, error)
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
}

// UserService covers role mutation. The caller must already have checked
// that actor holds the admin role.
type UserService interface {
	GrantRole(ctx context.Context, actor *domain.Identity, userID int64, role domain.Role) error
	RevokeRole(ctx context.Context, actor *domain.Identity, userID int64, role domain.Role) error
}
