package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

type AdminHandler struct {
	userService ports.UserService
}

func NewAdminHandler(userService ports.UserService) *AdminHandler {
	return &AdminHandler{userService: userService}
}

type statusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AddRole grants a role to a user.
//
// @Summary      Grant role
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      int     true  "User ID"
// @Param        role     path      string  true  "Role"  Enums(admin, user)
// @Success      200      {object}  statusMessage
// @Failure      400      {object}  errorBody
// @Failure      401      {object}  errorBody
// @Failure      403      {object}  errorBody
// @Failure      404      {object}  errorBody
// @Router       /admin/users/{user_id}/roles/{role} [post]
func (h *AdminHandler) AddRole(c echo.Context) error {
	actor, userID, role, err := roleParams(c)
	if err != nil {
		return err
	}
	if err := h.userService.GrantRole(c.Request().Context(), actor, userID, role); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusMessage{
		Status:  "success",
		Message: fmt.Sprintf("Role %s added to user %d successfully", role, userID),
	})
}

// RemoveRole revokes a role from a user.
//
// @Summary      Revoke role
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path      int     true  "User ID"
// @Param        role     path      string  true  "Role"  Enums(admin, user)
// @Success      200      {object}  statusMessage
// @Failure      400      {object}  errorBody
// @Failure      401      {object}  errorBody
// @Failure      403      {object}  errorBody
// @Failure      404      {object}  errorBody
// @Router       /admin/users/{user_id}/roles/{role} [delete]
func (h *AdminHandler) RemoveRole(c echo.Context) error {
	actor, userID, role, err := roleParams(c)
	if err != nil {
		return err
	}
	if err := h.userService.RevokeRole(c.Request().Context(), actor, userID, role); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusMessage{
		Status:  "success",
		Message: fmt.Sprintf("Role %s removed from user %d successfully", role, userID),
	})
}

// roleParams collects the actor and both path parameters, reporting every
// malformed parameter at once.
func roleParams(c echo.Context) (*domain.Identity, int64, domain.Role, error) {
	actor, err := currentIdentity(c)
	if err != nil {
		return nil, 0, "", err
	}

	var errs domain.ValidationErrors
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		errs = append(errs, domain.FieldError{Field: "user_id", Message: "User id must be a positive integer"})
	}
	role, err := domain.ParseRole(c.Param("role"))
	if err != nil {
		errs = append(errs, domain.FieldError{Field: "role", Message: "Role must be one of: admin, user"})
	}
	if len(errs) > 0 {
		return nil, 0, "", errs
	}
	return actor, userID, role, nil
}
