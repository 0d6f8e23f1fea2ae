package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
	"github.com/99minutos/identity-service/internal/pkg/metrics"
)

// UserService implements role mutation on existing accounts.
type UserService struct {
	users ports.UserRepository
	audit ports.AuditPublisher
	log   zerolog.Logger
}

func NewUserService(users ports.UserRepository, audit ports.AuditPublisher, log zerolog.Logger) *UserService {
	if audit == nil {
		audit = noopAudit{}
	}
	return &UserService{users: users, audit: audit, log: log}
}

// GrantRole adds role to userID. Granting a role the user already holds is a no-op.
func (s *UserService) GrantRole(ctx context.Context, actor *domain.Identity, userID int64, role domain.Role) error {
	return s.mutate(ctx, "grant", actor, userID, role, s.users.AddRole)
}

// RevokeRole removes role from userID. Revoking an absent role is a no-op.
func (s *UserService) RevokeRole(ctx context.Context, actor *domain.Identity, userID int64, role domain.Role) error {
	return s.mutate(ctx, "revoke", actor, userID, role, s.users.RemoveRole)
}

func (s *UserService) mutate(
	ctx context.Context,
	action string,
	actor *domain.Identity,
	userID int64,
	role domain.Role,
	apply func(context.Context, int64, domain.Role) error,
) error {
	if actor == nil || !actor.Roles.Has(domain.RoleAdmin) {
		return fmt.Errorf("%w: %s role requires admin", domain.ErrForbidden, action)
	}

	if err := apply(ctx, userID, role); err != nil {
		result := "error"
		if errors.Is(err, domain.ErrUserNotFound) {
			result = "not_found"
		}
		metrics.RoleChangesTotal.WithLabelValues(action, result).Inc()
		return err
	}

	metrics.RoleChangesTotal.WithLabelValues(action, "success").Inc()

	eventType := domain.EventRoleGranted
	if action == "revoke" {
		eventType = domain.EventRoleRevoked
	}
	event := domain.NewAuthEvent(eventType, domain.AccountSubject(userID))
	event.UserID = userID
	event.Actor = actor.Username
	event.Role = role
	s.audit.Publish(event)

	s.log.Info().
		Str("action", action).
		Str("role", string(role)).
		Int64("user_id", userID).
		Str("actor", actor.Username).
		Msg("role changed")
	return nil
}

// EnsureAdmin makes sure the account described by in exists and holds the
// admin role, registering it first when absent. It is used once at startup
// to seed the first administrator.
func EnsureAdmin(ctx context.Context, auth *AuthService, users ports.UserRepository, in domain.RegisterInput) (int64, error) {
	var id int64
	user, err := users.FindByIdentifier(ctx, in.Username)
	switch {
	case err == nil:
		id = user.ID
	case errors.Is(err, domain.ErrUserNotFound):
		id, err = auth.Register(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("register admin: %w", err)
		}
	default:
		return 0, err
	}

	if err := users.AddRole(ctx, id, domain.RoleAdmin); err != nil {
		return 0, fmt.Errorf("grant admin: %w", err)
	}
	return id, nil
}
