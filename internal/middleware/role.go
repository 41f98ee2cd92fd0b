package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// AdminChecker is the is_admin predicate of the user store.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID uint64) (bool, error)
}

// RequireAdmin aborts with 403 unless the authenticated user is an admin.
// It must run after BearerAuth. The flag is read from the database on every
// request so a demotion takes effect before the access token expires.
func RequireAdmin(users AdminChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, ok := CurrentUserID(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			admin, err := users.IsAdmin(c.Request().Context(), uid)
			if err != nil || !admin {
				if err != nil {
					requestLogger(c).Warn("admin check failed", "user_id", uid, "err", err)
				}
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
