package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selenly/selenly-api/internal/config"
	"github.com/selenly/selenly-api/internal/utils"
)

func ok(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func do(e *echo.Echo, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestTokenBucket_BlocksAfterCapacity(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       3,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl:test",
	}
	e := echo.New()
	e.POST("/auth/login", ok, NewTokenBucket(cfg, rdb))
	e.POST("/auth/signup", ok, NewTokenBucket(cfg, rdb))

	for i := 0; i < 3; i++ {
		rec := do(e, http.MethodPost, "/auth/login", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := do(e, http.MethodPost, "/auth/login", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too_many_requests")

	// buckets are per route under ip_route
	rec = do(e, http.MethodPost, "/auth/signup", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, mr.Exists("rl:test:ip:192.0.2.1:route:POST /auth/login"))
}

func TestTokenBucket_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Hour, Prefix: "rl"}
	e := echo.New()
	e.POST("/auth/login", ok, NewTokenBucket(cfg, rdb))

	mr.Close()
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/auth/login", nil).Code)
	}

	e.POST("/auth/signup", ok, NewTokenBucket(cfg, nil))
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/auth/signup", nil).Code)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/auth/login")

	cfg := config.RateLimitConfig{Prefix: "rl"}
	cases := map[string]string{
		"ip":       "rl:ip:203.0.113.9",
		"user":     "rl:user:anon",
		"ip_route": "rl:ip:203.0.113.9:route:POST /auth/login",
		"":         "rl:ip:203.0.113.9:user:anon:route:POST /auth/login",
	}
	for strategy, want := range cases {
		cfg.KeyStrategy = strategy
		assert.Equal(t, want, buildRateKey(cfg, c), strategy)
	}

	c.Set(ContextUserID, uint64(42))
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:42", buildRateKey(cfg, c))
}

func newTestCodec(t *testing.T) *utils.TokenCodec {
	t.Helper()
	c, err := utils.NewTokenCodec(utils.CodecConfig{
		AccessSecret:  []byte("mw-access"),
		RefreshSecret: []byte("mw-refresh"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	require.NoError(t, err)
	return c
}

func TestBearerAuth(t *testing.T) {
	codec := newTestCodec(t)
	access, err := codec.IssueAccess(7)
	require.NoError(t, err)
	refresh, err := codec.IssueRefresh(7)
	require.NoError(t, err)

	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		uid, ok := CurrentUserID(c)
		require.True(t, ok)
		return c.JSON(http.StatusOK, echo.Map{"uid": uid})
	}, BearerAuth(codec))

	rec := do(e, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer " + access.Token}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uid":7}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/me", http.Header{"Authorization": {"bearer " + access.Token}})
	assert.Equal(t, http.StatusOK, rec.Code, "scheme is case-insensitive")

	for name, h := range map[string]http.Header{
		"missing":       nil,
		"basic":         {"Authorization": {"Basic Zm9vOmJhcg=="}},
		"empty bearer":  {"Authorization": {"Bearer "}},
		"refresh token": {"Authorization": {"Bearer " + refresh.Token}},
		"garbage":       {"Authorization": {"Bearer abc.def.ghi"}},
	} {
		rec := do(e, http.MethodGet, "/me", h)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderWWWAuthenticate), name)
	}
}

type adminStub map[uint64]bool

func (s adminStub) IsAdmin(_ context.Context, id uint64) (bool, error) {
	admin, ok := s[id]
	if !ok {
		return false, errors.New("not found")
	}
	return admin, nil
}

func TestRequireAdmin(t *testing.T) {
	codec := newTestCodec(t)
	e := echo.New()
	e.POST("/admin/x", ok, BearerAuth(codec), RequireAdmin(adminStub{1: true, 2: false}))

	bearer := func(id uint64) http.Header {
		tok, err := codec.IssueAccess(id)
		require.NoError(t, err)
		return http.Header{"Authorization": {"Bearer " + tok.Token}}
	}

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/admin/x", bearer(1)).Code)
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodPost, "/admin/x", bearer(2)).Code)
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodPost, "/admin/x", bearer(3)).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/admin/x", nil).Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestLogger(log))
	e.GET("/ok", func(c echo.Context) error {
		Logger(c).Info("inside handler")
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "nope")
	})

	rec := do(e, http.MethodGet, "/ok", http.Header{echo.HeaderXRequestID: {"req-123"}})
	assert.Equal(t, "req-123", rec.Header().Get(echo.HeaderXRequestID))
	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	assert.Equal(t, 2, strings.Count(buf.String(), "req-123"), "handler line and access line")

	buf.Reset()
	rec = do(e, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}
