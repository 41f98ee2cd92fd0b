package service

import "errors"

// Client-facing outcomes of the auth flows. Each rejection wraps a more
// specific reason (utils.ErrTokenExpired, ErrTokenRevoked, ...) that is
// only used for logs and tests; handlers map on these top-level errors.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredOrRevoked    = errors.New("token expired or revoked")
	ErrOneTimeTokenInvalid = errors.New("token invalid or expired")
	ErrUserNotFound        = errors.New("user not found")
)

// Rejection reasons.
var (
	ErrTokenRevoked = errors.New("token revoked")
	ErrTokenUsed    = errors.New("token already used")
)
