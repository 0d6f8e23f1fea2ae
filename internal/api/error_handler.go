package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Status string              `json:"status"`
	Detail string              `json:"detail"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status codes.
//   - Adds a Bearer challenge to every 401.
//   - Logs storage and unexpected errors without leaking details to the client.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if code == http.StatusUnauthorized {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	fail := func(code int, detail string) (int, errorResponse) {
		return code, errorResponse{Status: "error", Detail: detail}
	}

	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fail(he.Code, fmt.Sprintf("%v", he.Message))
	}

	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest, errorResponse{
			Status: "error",
			Detail: "Validation error",
			Errors: verrs.ByField(),
		}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return fail(http.StatusUnauthorized, "Incorrect username or password")
	case errors.Is(err, domain.ErrUnauthenticated):
		return fail(http.StatusUnauthorized, "Could not validate credentials")
	case errors.Is(err, domain.ErrForbidden):
		return fail(http.StatusForbidden, "Not enough permissions")
	case errors.Is(err, domain.ErrTooManyAttempts):
		return fail(http.StatusTooManyRequests, "Too many failed login attempts, try again later")
	case errors.Is(err, domain.ErrUserExists):
		return fail(http.StatusConflict, "Username or email already exists")
	case errors.Is(err, domain.ErrUserNotFound):
		return fail(http.StatusNotFound, "User not found")
	case errors.Is(err, domain.ErrUnknownRole):
		return fail(http.StatusBadRequest, "Unknown role")
	}

	event := log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path())
	if errors.Is(err, domain.ErrStorage) {
		event.Msg("storage error")
	} else {
		event.Msg("unhandled error")
	}

	return fail(http.StatusInternalServerError, "internal server error")
}
