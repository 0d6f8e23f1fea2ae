package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/service"
)

// RequireRole is Guard over service.RequireRole: unauthenticated callers get
// the authentication error, authenticated callers without role get
// domain.ErrForbidden.
func RequireRole(authn service.Authenticator, role domain.Role) echo.MiddlewareFunc {
	return Guard(service.RequireRole(authn, role))
}
