package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/selenly/selenly-api/internal/utils"
)

// TokenDecoder is the part of utils.TokenCodec the middleware needs.
type TokenDecoder interface {
	Decode(token string, want utils.TokenKind) (uint64, error)
}

// BearerAuth returns an Echo middleware that validates a Bearer access token
// and stores its subject under ContextUserID. Refresh tokens, expired tokens
// and forged tokens are all answered with the same 401.
func BearerAuth(codec TokenDecoder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, raw, found := strings.Cut(auth, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			uid, err := codec.Decode(strings.TrimSpace(raw), utils.AccessKind)
			if err != nil {
				requestLogger(c).Warn("bearer token rejected", "reason", err)
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(ContextUserID, uid)
			return next(c)
		}
	}
}
