package middleware

// identity.go holds the context keys shared by the middleware in this
// package and the helpers handlers use to read them back.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by the middleware.
const (
	ContextUserID    = "user_id"
	ContextRequestID = "request_id"
)

// CurrentUserID returns the subject of the access token validated by
// BearerAuth.
func CurrentUserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ContextUserID).(uint64)
	return id, ok && id != 0
}

// rateUserKey is the user part of a rate-limit key; "anon" before login.
func rateUserKey(c echo.Context) string {
	if id, ok := CurrentUserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
