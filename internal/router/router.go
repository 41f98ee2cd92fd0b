package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/selenly/selenly-api/internal/handler"
	"github.com/selenly/selenly-api/internal/middleware"
)

// RegisterRoutes registers the unauthenticated service routes.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/", handler.Root)
	e.GET("/health", handler.Health)
}

// RegisterAuth mounts the auth endpoints under /auth. The limiter wraps the
// endpoints that take credentials, email addresses or one-time tokens;
// /me and /logout-all require a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, codec middleware.TokenDecoder, limiter echo.MiddlewareFunc) {
	g := e.Group("/auth")

	g.POST("/signup", a.Signup, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	g.POST("/request-password-reset", a.RequestPasswordReset, limiter)
	g.POST("/reset-password", a.ResetPassword, limiter)
	g.POST("/request-verification", a.RequestVerification, limiter)
	g.POST("/verify-email", a.VerifyEmail, limiter)

	bearer := middleware.BearerAuth(codec)
	g.GET("/me", a.Me, bearer)
	g.POST("/logout-all", a.LogoutAll, bearer)
}

// RegisterAdmin mounts the admin-only endpoints. Admin status is checked on
// every request against the user store.
func RegisterAdmin(e *echo.Echo, ad *handler.AdminHandler, codec middleware.TokenDecoder, users middleware.AdminChecker) {
	g := e.Group("/admin", middleware.BearerAuth(codec), middleware.RequireAdmin(users))
	g.POST("/users/:id/revoke-sessions", ad.RevokeSessions)
}
