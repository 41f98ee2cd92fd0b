package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/selenly/selenly-api/internal/middleware"
	"github.com/selenly/selenly-api/internal/model"
	"github.com/selenly/selenly-api/internal/service"
	"github.com/selenly/selenly-api/internal/utils"
)

// requestTimeout bounds the storage work of a single auth request.
const requestTimeout = 5 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc *service.AuthService
	// ExposeOneTimeTokens echoes reset/verification tokens in the response
	// body for local testing.
	ExposeOneTimeTokens bool
}

func NewAuthHandler(svc *service.AuthService, exposeOneTimeTokens bool) *AuthHandler {
	return &AuthHandler{Svc: svc, ExposeOneTimeTokens: exposeOneTimeTokens}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}
type emailReq struct {
	Email string `json:"email" validate:"required,email,max=254"`
}
type resetPasswordReq struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,max=72"`
}
type verifyEmailReq struct {
	Token string `json:"token" validate:"required"`
}

type userResp struct {
	ID              uint64    `json:"id"`
	Email           string    `json:"email"`
	IsActive        bool      `json:"is_active"`
	IsEmailVerified bool      `json:"is_email_verified"`
	IsAdmin         bool      `json:"is_admin"`
	CreatedAt       time.Time `json:"created_at"`
}

type tokenPairResp struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type statusResp struct {
	Status string `json:"status"`
	Token  string `json:"token,omitempty"`
}

func toUserResp(u model.User) userResp {
	return userResp{
		ID:              u.ID,
		Email:           u.Email,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		IsAdmin:         u.IsAdmin,
		CreatedAt:       u.CreatedAt.UTC(),
	}
}

func toPairResp(p service.TokenPair) tokenPairResp {
	return tokenPairResp{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "bearer",
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// Signup: create an unverified user.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req credentialsReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.Signup(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// Login: verify credentials and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toPairResp(pair))
}

// Refresh: rotate the presented refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toPairResp(pair))
}

// Logout: revoke one refresh token. Unknown tokens still get 200.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Svc.Logout(ctx, req.RefreshToken); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, statusResp{Status: "ok"})
}

// LogoutAll: revoke every session of the authenticated user (protected).
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := h.Svc.RevokeSessions(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "revoked": n})
}

// RequestPasswordReset always answers {status: ok} so the response does not
// reveal whether the email is registered.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	return h.requestOneTime(c, h.Svc.RequestPasswordReset)
}

// RequestVerification has the same response shape as RequestPasswordReset.
func (h *AuthHandler) RequestVerification(c echo.Context) error {
	return h.requestOneTime(c, h.Svc.RequestVerification)
}

func (h *AuthHandler) requestOneTime(c echo.Context, issue func(context.Context, string) (string, error)) error {
	var req emailReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	token, err := issue(ctx, req.Email)
	if err != nil {
		return fail(c, err)
	}
	resp := statusResp{Status: "ok"}
	if h.ExposeOneTimeTokens {
		resp.Token = token
	}
	return c.JSON(http.StatusOK, resp)
}

// ResetPassword: consume a reset token and set a new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Svc.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, statusResp{Status: "ok"})
}

// VerifyEmail: consume a verification token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req verifyEmailReq
	if err := bindBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Svc.VerifyEmail(ctx, req.Token); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, statusResp{Status: "ok"})
}

// Me: the authenticated user's record.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.CurrentUser(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// fail maps service errors to responses. Token rejections share one message
// per endpoint family whatever the underlying reason.
func fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email already registered"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrExpiredOrRevoked):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
	case errors.Is(err, service.ErrOneTimeTokenInvalid):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token invalid or expired"})
	case errors.Is(err, service.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case errors.Is(err, utils.ErrPasswordTooLong):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "password too long"})
	}
	middleware.Logger(c).Error("request failed", "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
