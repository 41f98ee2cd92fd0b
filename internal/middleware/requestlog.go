package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const contextLogger = "logger"

// RequestLogger tags each request with an id (the caller's X-Request-ID when
// present, a fresh uuid otherwise), echoes it back, and logs one line per
// request once the handler returns.
func RequestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" || len(rid) > 128 {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			reqLog := log.With(slog.String("request_id", rid))
			c.Set(ContextRequestID, rid)
			c.Set(contextLogger, reqLog)

			err := next(c)
			if err != nil {
				// let echo write the response so the status below is final
				c.Error(err)
			}

			status := c.Response().Status
			attrs := []any{
				slog.String("method", req.Method),
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("remote_ip", c.RealIP()),
			}
			switch {
			case status >= 500:
				reqLog.Error("request", attrs...)
			case status >= 400:
				reqLog.Warn("request", attrs...)
			default:
				reqLog.Info("request", attrs...)
			}
			return nil
		}
	}
}

// requestLogger returns the request-scoped logger set by RequestLogger.
func requestLogger(c echo.Context) *slog.Logger {
	if l, ok := c.Get(contextLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// Logger is the exported form of requestLogger for handlers.
func Logger(c echo.Context) *slog.Logger { return requestLogger(c) }
