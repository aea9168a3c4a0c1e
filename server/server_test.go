package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-cookie-auth/auth"
	"github.com/jrsteele09/go-cookie-auth/internal/config"
	apperrors "github.com/jrsteele09/go-cookie-auth/internal/errors"
	"github.com/jrsteele09/go-cookie-auth/server"
	"github.com/jrsteele09/go-cookie-auth/token"
	"github.com/jrsteele09/go-cookie-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-cookie-auth/users/repofake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type testServer struct {
	srv    *server.Server
	repo   *fakeuserrepo.FakeUserRepo
	tokens *token.Manager
	clock  *clock
}

func newTestServer(t *testing.T, repo users.UserRepo, overrides map[string]any) *testServer {
	t.Helper()
	values := map[string]any{
		"ACCESS_TOKEN_SECRET":  "access-secret",
		"REFRESH_TOKEN_SECRET": "refresh-secret",
		"ENV":                  "TEST",
		"ALLOWED_ORIGINS":      "http://localhost:3000",
	}
	for k, v := range overrides {
		values[k] = v
	}
	cfg := config.NewFromMap(values)
	require.NoError(t, cfg.Validate())

	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tokens, err := token.New(cfg.GetAccessTokenSecret(), cfg.GetRefreshTokenSecret(),
		token.WithTokenExpiry(cfg.GetAccessTokenTTL(), cfg.GetRefreshTokenTTL()),
		token.WithNowFunc(c.Now))
	require.NoError(t, err)

	fake, _ := repo.(*fakeuserrepo.FakeUserRepo)
	if repo == nil {
		fake = fakeuserrepo.NewFakeUserRepo()
		repo = fake
	}

	svc, err := auth.NewService(repo, tokens,
		auth.WithBcryptCost(bcrypt.MinCost),
		auth.WithRefreshRotation(cfg.GetRotateRefreshToken()))
	require.NoError(t, err)

	srv, err := server.New(cfg, svc, zerolog.Nop())
	require.NoError(t, err)

	return &testServer{srv: srv, repo: fake, tokens: tokens, clock: c}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(t *testing.T, username, password, role string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, server.RouteRegister, auth.RegisterRequest{Username: username, Password: password, Role: role})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (ts *testServer) login(t *testing.T, username, password string) (access, refresh *http.Cookie) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, server.RouteLogin, auth.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	access = cookieNamed(rec, server.AccessTokenCookie)
	refresh = cookieNamed(rec, server.RefreshTokenCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) server.ErrorResponse {
	t.Helper()
	var body server.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func requireAuthFailure(t *testing.T, rec *httptest.ResponseRecorder, reason apperrors.Reason) {
	t.Helper()
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, string(reason), rec.Header().Get(server.HeaderAuthReason))
	body := decodeError(t, rec)
	require.Equal(t, apperrors.KindAuth, body.Kind)
	require.Equal(t, reason, body.Reason)
}

func TestLogin_SetsCookies(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.register(t, "alice", "secret123", "")

	rec := ts.do(t, http.MethodPost, server.RouteLogin, auth.LoginRequest{Username: "alice", Password: "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Message string         `json:"message"`
		User    users.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, users.Identity{Username: "alice", Role: users.RoleUser}, body.User)

	access := cookieNamed(rec, server.AccessTokenCookie)
	require.NotNil(t, access)
	require.True(t, access.HttpOnly)
	require.True(t, access.Secure)
	require.Equal(t, http.SameSiteNoneMode, access.SameSite)
	require.Equal(t, "/", access.Path)
	require.Equal(t, int((24 * time.Hour).Seconds()), access.MaxAge)

	refresh := cookieNamed(rec, server.RefreshTokenCookie)
	require.NotNil(t, refresh)
	require.Equal(t, int((7 * 24 * time.Hour).Seconds()), refresh.MaxAge)
}

func TestLogin_Failures(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.register(t, "alice", "secret123", "")

	rec := ts.do(t, http.MethodPost, server.RouteLogin, auth.LoginRequest{Username: "alice", Password: "nope"})
	requireAuthFailure(t, rec, apperrors.ReasonInvalidCredentials)
	require.Nil(t, cookieNamed(rec, server.AccessTokenCookie))

	rec = ts.do(t, http.MethodPost, server.RouteLogin, auth.LoginRequest{Username: "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, apperrors.KindValidation, decodeError(t, rec).Kind)

	req := httptest.NewRequest(http.MethodPost, server.RouteLogin, bytes.NewBufferString("{not json"))
	raw := httptest.NewRecorder()
	ts.srv.ServeHTTP(raw, req)
	require.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.register(t, "alice", "secret123", "")

	rec := ts.do(t, http.MethodPost, server.RouteRegister, auth.RegisterRequest{Username: "alice", Password: "x"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, apperrors.KindConflict, decodeError(t, rec).Kind)

	rec = ts.do(t, http.MethodPost, server.RouteRegister, auth.RegisterRequest{Username: "bob", Password: "x", Role: "GOD"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, decodeError(t, rec).Details)
}

func TestRegisterThenLogin_PaddedUsername(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodPost, server.RouteRegister, auth.RegisterRequest{Username: " bob ", Password: "pw"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, server.RouteLogin, auth.LoginRequest{Username: " bob ", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, cookieNamed(rec, server.AccessTokenCookie))

	var body struct {
		User users.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "bob", body.User.Username)
}

// The five outcomes of the session state machine.
func TestRequireSession(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.register(t, "alice", "secret123", "")
	access, _ := ts.login(t, "alice", "secret123")

	t.Run("admitted", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, server.RouteLoggedInUser, nil, access)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get(server.HeaderAuthReason))

		var body struct {
			User users.Identity `json:"user"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "alice", body.User.Username)
	})

	t.Run("no cookie", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, server.RouteLoggedInUser, nil)
		requireAuthFailure(t, rec, apperrors.ReasonTokenMissing)
		require.Equal(t, "Unauthorized: Token missing", decodeError(t, rec).Message)
	})

	t.Run("tampered", func(t *testing.T) {
		bad := &http.Cookie{Name: server.AccessTokenCookie, Value: access.Value + "x"}
		rec := ts.do(t, http.MethodGet, server.RouteLoggedInUser, nil, bad)
		requireAuthFailure(t, rec, apperrors.ReasonTokenInvalid)
	})

	t.Run("unknown user", func(t *testing.T) {
		ghost, _, err := ts.tokens.IssueAccess(users.Identity{Username: "ghost", Role: users.RoleUser})
		require.NoError(t, err)
		rec := ts.do(t, http.MethodGet, server.RouteLoggedInUser, nil, &http.Cookie{Name: server.AccessTokenCookie, Value: ghost})
		requireAuthFailure(t, rec, apperrors.ReasonUserNotFound)
	})

	t.Run("store down", func(t *testing.T) {
		ts.repo.Err = errors.New("connection refused")
		defer func() { ts.repo.Err = nil }()
		rec := ts.do(t, http.MethodGet, server.RouteLoggedInUser, nil, access)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decodeError(t, rec)
		require.Equal(t, apperrors.KindInternal, body.Kind)
		require.Equal(t, "Internal Server Error", body.Message)
		require.NotContains(t, rec.Body.String(), "connection refused")
	})

	t.Run("expired", func(t *testing.T) {
		ts.clock.now = ts.clock.now.Add(5*time.Minute + time.Second)
		rec := ts.do(t, http.MethodGet, server.RouteLoggedInUser, nil, access)
		requireAuthFailure(t, rec, apperrors.ReasonTokenExpired)
		require.Equal(t, "Unauthorized: Token expired", decodeError(t, rec).Message)
	})
}

type panickingRepo struct{}

func (panickingRepo) GetByUsername(context.Context, string) (*users.User, error) {
	panic("lookup exploded")
}

func (panickingRepo) Create(context.Context, *users.User) error { return nil }

func TestRequireSession_PanicIsInternal(t *testing.T) {
	ts := newTestServer(t, panickingRepo{}, nil)
	tok, _, err := ts.tokens.IssueAccess(users.Identity{Username: "alice", Role: users.RoleUser})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, server.RouteLoggedInUser, nil, &http.Cookie{Name: server.AccessTokenCookie, Value: tok})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, apperrors.KindInternal, decodeError(t, rec).Kind)
}

func TestRefreshToken_Rotation(t *testing.T) {
	ts := newTestServer(t, nil, map[string]any{"ROTATE_REFRESH_TOKEN": true})
	ts.register(t, "alice", "secret123", "")
	access, refresh := ts.login(t, "alice", "secret123")

	ts.clock.now = ts.clock.now.Add(6 * time.Minute)
	rec := ts.do(t, http.MethodGet, server.RouteLoggedInUser, nil, access)
	requireAuthFailure(t, rec, apperrors.ReasonTokenExpired)

	rec = ts.do(t, http.MethodPost, server.RouteRefreshToken, nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body server.RefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	newAccess := cookieNamed(rec, server.AccessTokenCookie)
	require.NotNil(t, newAccess)
	require.Equal(t, body.AccessToken, newAccess.Value)

	newRefresh := cookieNamed(rec, server.RefreshTokenCookie)
	require.NotNil(t, newRefresh)
	require.NotEqual(t, refresh.Value, newRefresh.Value)

	rec = ts.do(t, http.MethodGet, server.RouteLoggedInUser, nil, newAccess)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshToken_NoRotation(t *testing.T) {
	ts := newTestServer(t, nil, map[string]any{"ROTATE_REFRESH_TOKEN": false})
	ts.register(t, "alice", "secret123", "")
	_, refresh := ts.login(t, "alice", "secret123")

	rec := ts.do(t, http.MethodPost, server.RouteRefreshToken, nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, cookieNamed(rec, server.AccessTokenCookie))
	require.Nil(t, cookieNamed(rec, server.RefreshTokenCookie))
}

func TestRefreshToken_FailureClearsCookies(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.register(t, "alice", "secret123", "")
	access, refresh := ts.login(t, "alice", "secret123")

	t.Run("missing", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, server.RouteRefreshToken, nil)
		requireAuthFailure(t, rec, apperrors.ReasonTokenMissing)
		require.Equal(t, -1, cookieNamed(rec, server.AccessTokenCookie).MaxAge)
		require.Equal(t, -1, cookieNamed(rec, server.RefreshTokenCookie).MaxAge)
	})

	t.Run("access token presented as refresh", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, server.RouteRefreshToken, nil,
			&http.Cookie{Name: server.RefreshTokenCookie, Value: access.Value})
		requireAuthFailure(t, rec, apperrors.ReasonTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		ts.clock.now = ts.clock.now.Add(8 * 24 * time.Hour)
		rec := ts.do(t, http.MethodPost, server.RouteRefreshToken, nil, refresh)
		requireAuthFailure(t, rec, apperrors.ReasonTokenExpired)
		require.Equal(t, -1, cookieNamed(rec, server.RefreshTokenCookie).MaxAge)
	})
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	rec := ts.do(t, http.MethodPost, server.RouteLogout, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, -1, cookieNamed(rec, server.AccessTokenCookie).MaxAge)
	require.Equal(t, -1, cookieNamed(rec, server.RefreshTokenCookie).MaxAge)
}

func TestUserLookup_RequiresAdmin(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.register(t, "alice", "secret123", "")
	ts.register(t, "root", "hunter2", "ADMIN")

	userAccess, _ := ts.login(t, "alice", "secret123")
	adminAccess, _ := ts.login(t, "root", "hunter2")

	rec := ts.do(t, http.MethodGet, "/users/alice", nil)
	requireAuthFailure(t, rec, apperrors.ReasonTokenMissing)

	rec = ts.do(t, http.MethodGet, "/users/alice", nil, userAccess)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, apperrors.KindForbidden, decodeError(t, rec).Kind)

	rec = ts.do(t, http.MethodGet, "/users/alice", nil, adminAccess)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "$2a$")

	rec = ts.do(t, http.MethodGet, "/users/nobody", nil, adminAccess)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	require.Equal(t, []string{
		"POST " + server.RouteLogin,
		"POST " + server.RouteRegister,
		"POST " + server.RouteRefreshToken,
		"POST " + server.RouteLogout,
		"GET " + server.RouteLoggedInUser,
		"GET " + server.RouteUser,
		"GET " + server.RouteHealth,
		"OPTIONS /",
	}, ts.srv.Routes())

	ts.srv.RegisterRouteFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	require.Contains(t, ts.srv.Routes(), "GET /ping")
	require.Equal(t, http.StatusTeapot, ts.do(t, http.MethodGet, "/ping", nil).Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	rec := ts.do(t, http.MethodGet, server.RouteHealth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"up"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(server.HeaderRequestID))
}

func TestCors(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, server.RouteLogin, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, server.RouteHealth, nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestInsecureCookiesUseLax(t *testing.T) {
	ts := newTestServer(t, nil, map[string]any{"COOKIE_SECURE": false})
	ts.register(t, "alice", "secret123", "")
	access, _ := ts.login(t, "alice", "secret123")
	require.False(t, access.Secure)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)
}
