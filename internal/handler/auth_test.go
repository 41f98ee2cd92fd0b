package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/selenly/selenly-api/internal/database"
	"github.com/selenly/selenly-api/internal/database/databasetest"
	"github.com/selenly/selenly-api/internal/handler"
	"github.com/selenly/selenly-api/internal/repository"
	"github.com/selenly/selenly-api/internal/router"
	"github.com/selenly/selenly-api/internal/service"
	"github.com/selenly/selenly-api/internal/utils"
)

type testServer struct {
	e     *echo.Echo
	store *repository.Store
}

func newServer(t *testing.T, expose bool) *testServer {
	t.Helper()
	store := repository.NewStore(databasetest.Open(t), database.DriverSQLite)
	codec, err := utils.NewTokenCodec(utils.CodecConfig{
		AccessSecret:  []byte("http-access"),
		RefreshSecret: []byte("http-refresh"),
		AccessTTL:     30 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "selenly-test",
	})
	require.NoError(t, err)
	svc, err := service.NewAuthService(store, codec, service.Options{
		BcryptCost: bcrypt.MinCost,
		ResetTTL:   time.Hour,
		VerifyTTL:  24 * time.Hour,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	noLimit := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(svc, expose), codec, noLimit)
	router.RegisterAdmin(e, handler.NewAdminHandler(svc), codec, store.Users)
	return &testServer{e: e, store: store}
}

func (s *testServer) call(t *testing.T, method, path, body, bearer string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func jsonBody(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestConcreteScenario(t *testing.T) {
	s := newServer(t, false)
	creds := `{"email":"a@b.com","password":"Secret123!"}`

	code, user := s.call(t, http.MethodPost, "/auth/signup", creds, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, user["is_email_verified"])
	assert.Equal(t, "a@b.com", user["email"])
	assert.Equal(t, true, user["is_active"])
	assert.Equal(t, false, user["is_admin"])
	assert.NotEmpty(t, user["created_at"])

	code, pair := s.call(t, http.MethodPost, "/auth/login", creds, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bearer", pair["token_type"])
	first := pair["refresh_token"].(string)
	require.NotEmpty(t, first)
	require.NotEmpty(t, pair["access_token"])

	code, next := s.call(t, http.MethodPost, "/auth/refresh", jsonBody(t, map[string]string{"refresh_token": first}), "")
	require.Equal(t, http.StatusOK, code)
	assert.NotEqual(t, first, next["refresh_token"])

	code, body := s.call(t, http.MethodPost, "/auth/refresh", jsonBody(t, map[string]string{"refresh_token": first}), "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid or expired token", body["error"])
}

func TestSignupAndLoginErrors(t *testing.T) {
	s := newServer(t, false)
	creds := `{"email":"a@b.com","password":"Secret123!"}`

	code, _ := s.call(t, http.MethodPost, "/auth/signup", creds, "")
	require.Equal(t, http.StatusOK, code)
	code, body := s.call(t, http.MethodPost, "/auth/signup", creds, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "email already registered", body["error"])

	code, wrongPw := s.call(t, http.MethodPost, "/auth/login", `{"email":"a@b.com","password":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, noUser := s.call(t, http.MethodPost, "/auth/login", `{"email":"x@b.com","password":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, wrongPw, noUser)

	code, body = s.call(t, http.MethodPost, "/auth/signup", `{"email":"not-an-email","password":""}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")

	code, body = s.call(t, http.MethodPost, "/auth/login", `{"email":`, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid body", body["error"])
}

func TestPasswordResetRequest_SameShapeForUnknownEmail(t *testing.T) {
	s := newServer(t, false)
	code, _ := s.call(t, http.MethodPost, "/auth/signup", `{"email":"a@b.com","password":"Secret123!"}`, "")
	require.Equal(t, http.StatusOK, code)

	for _, path := range []string{"/auth/request-password-reset", "/auth/request-verification"} {
		known, knownBody := s.call(t, http.MethodPost, path, `{"email":"a@b.com"}`, "")
		unknown, unknownBody := s.call(t, http.MethodPost, path, `{"email":"ghost@b.com"}`, "")
		assert.Equal(t, http.StatusOK, known, path)
		assert.Equal(t, known, unknown, path)
		assert.Equal(t, map[string]any{"status": "ok"}, knownBody, path)
		assert.Equal(t, knownBody, unknownBody, path)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	s := newServer(t, true)
	code, _ := s.call(t, http.MethodPost, "/auth/signup", `{"email":"a@b.com","password":"Secret123!"}`, "")
	require.Equal(t, http.StatusOK, code)

	code, body := s.call(t, http.MethodPost, "/auth/request-password-reset", `{"email":"a@b.com"}`, "")
	require.Equal(t, http.StatusOK, code)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	_, ghost := s.call(t, http.MethodPost, "/auth/request-password-reset", `{"email":"ghost@b.com"}`, "")
	assert.Equal(t, map[string]any{"status": "ok"}, ghost)

	reset := jsonBody(t, map[string]string{"token": token, "new_password": "NewSecret456!"})
	code, body = s.call(t, http.MethodPost, "/auth/reset-password", reset, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = s.call(t, http.MethodPost, "/auth/reset-password", reset, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "token invalid or expired", body["error"])

	code, _ = s.call(t, http.MethodPost, "/auth/login", `{"email":"a@b.com","password":"NewSecret456!"}`, "")
	assert.Equal(t, http.StatusOK, code)
}

func TestVerifyEmailFlow(t *testing.T) {
	s := newServer(t, true)
	creds := `{"email":"a@b.com","password":"Secret123!"}`
	s.call(t, http.MethodPost, "/auth/signup", creds, "")
	_, pair := s.call(t, http.MethodPost, "/auth/login", creds, "")
	access := pair["access_token"].(string)

	_, body := s.call(t, http.MethodPost, "/auth/request-verification", `{"email":"a@b.com"}`, "")
	token := body["token"].(string)

	code, _ := s.call(t, http.MethodPost, "/auth/verify-email", jsonBody(t, map[string]string{"token": token}), "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.call(t, http.MethodPost, "/auth/verify-email", jsonBody(t, map[string]string{"token": token}), "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, me := s.call(t, http.MethodGet, "/auth/me", "", access)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, me["is_email_verified"])
}

func TestMeRequiresAccessToken(t *testing.T) {
	s := newServer(t, false)
	creds := `{"email":"a@b.com","password":"Secret123!"}`
	s.call(t, http.MethodPost, "/auth/signup", creds, "")
	_, pair := s.call(t, http.MethodPost, "/auth/login", creds, "")

	code, _ := s.call(t, http.MethodGet, "/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.call(t, http.MethodGet, "/auth/me", "", pair["refresh_token"].(string))
	assert.Equal(t, http.StatusUnauthorized, code)
	code, me := s.call(t, http.MethodGet, "/auth/me", "", pair["access_token"].(string))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a@b.com", me["email"])
}

func TestLogoutIsIdempotent(t *testing.T) {
	s := newServer(t, false)
	creds := `{"email":"a@b.com","password":"Secret123!"}`
	s.call(t, http.MethodPost, "/auth/signup", creds, "")
	_, pair := s.call(t, http.MethodPost, "/auth/login", creds, "")
	body := jsonBody(t, map[string]any{"refresh_token": pair["refresh_token"]})

	for i := 0; i < 2; i++ {
		code, out := s.call(t, http.MethodPost, "/auth/logout", body, "")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", out["status"])
	}
	code, _ := s.call(t, http.MethodPost, "/auth/logout", `{"refresh_token":"never-issued"}`, "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.call(t, http.MethodPost, "/auth/refresh", body, "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestLogoutAll(t *testing.T) {
	s := newServer(t, false)
	creds := `{"email":"a@b.com","password":"Secret123!"}`
	s.call(t, http.MethodPost, "/auth/signup", creds, "")
	_, one := s.call(t, http.MethodPost, "/auth/login", creds, "")
	_, two := s.call(t, http.MethodPost, "/auth/login", creds, "")

	code, out := s.call(t, http.MethodPost, "/auth/logout-all", "", two["access_token"].(string))
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, out["revoked"])

	for _, p := range []map[string]any{one, two} {
		code, _ := s.call(t, http.MethodPost, "/auth/refresh", jsonBody(t, map[string]any{"refresh_token": p["refresh_token"]}), "")
		assert.Equal(t, http.StatusUnauthorized, code)
	}
}

func TestAdminRevokeSessions(t *testing.T) {
	s := newServer(t, false)
	s.call(t, http.MethodPost, "/auth/signup", `{"email":"admin@b.com","password":"Secret123!"}`, "")
	_, victim := s.call(t, http.MethodPost, "/auth/signup", `{"email":"user@b.com","password":"Secret123!"}`, "")
	_, adminPair := s.call(t, http.MethodPost, "/auth/login", `{"email":"admin@b.com","password":"Secret123!"}`, "")
	_, userPair := s.call(t, http.MethodPost, "/auth/login", `{"email":"user@b.com","password":"Secret123!"}`, "")

	victimID := uint64(victim["id"].(float64))
	path := "/admin/users/" + strconv.FormatUint(victimID, 10) + "/revoke-sessions"
	adminAccess := adminPair["access_token"].(string)

	code, _ := s.call(t, http.MethodPost, path, "", userPair["access_token"].(string))
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.call(t, http.MethodPost, path, "", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	admin, err := s.store.Users.GetByEmail(context.Background(), "admin@b.com")
	require.NoError(t, err)
	require.NoError(t, s.store.Users.SetAdmin(context.Background(), admin.ID, true))

	code, out := s.call(t, http.MethodPost, path, "", adminAccess)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out["revoked"])

	code, _ = s.call(t, http.MethodPost, "/auth/refresh", jsonBody(t, map[string]any{"refresh_token": userPair["refresh_token"]}), "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.call(t, http.MethodPost, "/admin/users/99999/revoke-sessions", "", adminAccess)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.call(t, http.MethodPost, "/admin/users/abc/revoke-sessions", "", adminAccess)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRootAndHealth(t *testing.T) {
	s := newServer(t, false)
	code, body := s.call(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"status": "ok", "service": "selenly-backend"}, body)

	code, body = s.call(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"status": "ok"}, body)
}
