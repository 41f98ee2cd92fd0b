package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/selenly/selenly-api/internal/service"
)

// AdminHandler serves the admin-only endpoints. Routes are expected to sit
// behind BearerAuth and RequireAdmin.
type AdminHandler struct {
	Svc *service.AuthService
}

func NewAdminHandler(svc *service.AuthService) *AdminHandler { return &AdminHandler{Svc: svc} }

// RevokeSessions revokes every refresh token and unused one-time token of
// the user in :id, e.g. before deactivating the account.
func (h *AdminHandler) RevokeSessions(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := h.Svc.RevokeSessions(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "user_id": id, "revoked": n})
}
