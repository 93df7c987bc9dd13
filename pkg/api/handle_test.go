package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-credential/pkg/auth"
	"github.com/tendant/simple-credential/pkg/credential"
	"github.com/tendant/simple-credential/pkg/encoder"
	"github.com/tendant/simple-credential/pkg/identity"
	"github.com/tendant/simple-credential/pkg/lockout"
	"github.com/tendant/simple-credential/pkg/loginattempt"
	"github.com/tendant/simple-credential/pkg/notification"
	"github.com/tendant/simple-credential/pkg/passwordhistory"
	"github.com/tendant/simple-credential/pkg/random"
	"github.com/tendant/simple-credential/pkg/rememberme"
	"github.com/tendant/simple-credential/pkg/session"
)

const testSecret = "test-session-secret"

type testServer struct {
	handler    http.Handler
	store      *credential.Store
	records    *credential.InMemoryRepository
	identities *identity.Service
	notifier   *notification.MockNotifier
	member     identity.Identity
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	salts := random.New()
	registry, err := encoder.NewDefaultRegistry(encoder.TagPBKDF2SHA256, salts, encoder.WithPBKDF2Iterations(1000))
	require.NoError(t, err)

	historyLog := passwordhistory.NewLog(passwordhistory.NewInMemoryRepository(), registry)
	records := credential.NewInMemoryRepository()
	store := credential.NewStore(records, registry, salts,
		credential.WithHistory(historyLog),
		credential.WithLockoutPolicy(lockout.Policy{Threshold: 3, Duration: 15 * time.Minute}),
	)
	identities := identity.NewService(identity.NewInMemoryRepository())
	mock := &notification.MockNotifier{}
	nm, err := notification.NewNotificationManager(
		notification.WithNotifier(notification.EmailSystem, mock),
		notification.WithDefaultTemplates())
	require.NoError(t, err)

	service := auth.NewService(auth.Config{
		ResetLinkBaseURL:  "https://example.com/reset",
		HistoryCheckCount: 3,
	}, identities, store,
		auth.WithHistory(historyLog),
		auth.WithRecorder(loginattempt.NewRecorder(loginattempt.NewInMemorySink())),
		auth.WithRememberMe(rememberme.NewManager(rememberme.NewInMemoryRepository(), store, salts)),
		auth.WithNotifier(nm),
	)

	member, err := identities.Create(ctx, identity.Identity{Email: "alice@example.com"})
	require.NoError(t, err)
	_, err = store.UpdatePassword(ctx, member.ID, "first-pass")
	require.NoError(t, err)

	handler := Handler(RouterConfig{
		Handle:    NewHandle(service, session.NewIssuer(testSecret)),
		TokenAuth: jwtauth.New("HS256", []byte(testSecret), nil),
	})
	return &testServer{handler: handler, store: store, records: records, identities: identities, notifier: mock, member: member}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) login(t *testing.T, req LoginRequest) LoginResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/login", req, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[LoginResponse](t, rec)
}

func TestLogin(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/login", LoginRequest{Identifier: "alice@example.com", Password: "first-pass"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[LoginResponse](t, rec)
	assert.Equal(t, statusSuccess, resp.Status)
	assert.Equal(t, s.member.ID.String(), resp.IdentityID)
	assert.Equal(t, string(session.MethodPassword), resp.Method)
	assert.NotEmpty(t, resp.SessionToken)
	assert.NotEmpty(t, resp.TempToken)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, resp.SessionToken, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	t.Run("TempToken", func(t *testing.T) {
		again := s.login(t, LoginRequest{TempToken: resp.TempToken})
		assert.Equal(t, string(session.MethodTempToken), again.Method)
	})
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	s := setupServer(t)

	wrong := s.do(t, http.MethodPost, "/login", LoginRequest{Identifier: "alice@example.com", Password: "nope"}, "")
	unknown := s.do(t, http.MethodPost, "/login", LoginRequest{Identifier: "ghost@example.com", Password: "nope"}, "")

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "The provided details don't seem to be correct. Please try again.", decode[ErrorResponse](t, wrong).Message)

	t.Run("NoPasswordSet", func(t *testing.T) {
		_, err := s.identities.Create(context.Background(), identity.Identity{Email: "nopass@example.com"})
		require.NoError(t, err)

		rec := s.do(t, http.MethodPost, "/login", LoginRequest{Identifier: "nopass@example.com", Password: "nope"}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, unknown.Body.String(), rec.Body.String())
	})

	t.Run("UnknownAlgorithm", func(t *testing.T) {
		ctx := context.Background()
		ident, err := s.identities.Create(ctx, identity.Identity{Email: "legacy@example.com"})
		require.NoError(t, err)
		_, err = s.records.Insert(ctx, credential.Record{IdentityID: ident.ID, EncodedPassword: "x", AlgorithmTag: "crc32"})
		require.NoError(t, err)

		rec := s.do(t, http.MethodPost, "/login", LoginRequest{Identifier: "legacy@example.com", Password: "nope"}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, unknown.Body.String(), rec.Body.String())
	})

	t.Run("MalformedBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLockedAccount(t *testing.T) {
	s := setupServer(t)
	for i := 0; i < 3; i++ {
		s.do(t, http.MethodPost, "/login", LoginRequest{Identifier: "alice@example.com", Password: "nope"}, "")
	}

	rec := s.do(t, http.MethodPost, "/login", LoginRequest{Identifier: "alice@example.com", Password: "first-pass"}, "")
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "ACCOUNT_LOCKED", resp.Code)
	assert.Contains(t, resp.Message, "Please try again in 15 minutes")
}

func TestProtectedRoutes(t *testing.T) {
	s := setupServer(t)

	t.Run("RequireSession", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/me/status", nil, "").Code)
		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/me/status", nil, "not-a-jwt").Code)
		forged, _, err := session.NewIssuer("other-secret").Issue(s.member.ID, session.MethodPassword, "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/me/status", nil, forged).Code)
	})

	token := s.login(t, LoginRequest{Identifier: "alice@example.com", Password: "first-pass"}).SessionToken

	t.Run("Status", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/me/status", nil, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		status := decode[StatusResponse](t, rec)
		assert.Equal(t, s.member.ID.String(), status.IdentityID)
		assert.False(t, status.LockedOut)
		assert.True(t, status.CanLogin)
		assert.False(t, status.PasswordExpired)
	})

	t.Run("SessionCookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me/status", nil)
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ChangePassword", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/password/change", ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "second-pass"}, token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = s.do(t, http.MethodPost, "/password/change", ChangePasswordRequest{CurrentPassword: "first-pass", NewPassword: "first-pass"}, token)
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = s.do(t, http.MethodPost, "/password/change", ChangePasswordRequest{CurrentPassword: "first-pass", NewPassword: "second-pass"}, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		s.login(t, LoginRequest{Identifier: "alice@example.com", Password: "second-pass"})
	})
}

func TestRememberMeAndLogout(t *testing.T) {
	s := setupServer(t)
	first := s.login(t, LoginRequest{Identifier: "alice@example.com", Password: "first-pass", Remember: true, DeviceID: "laptop"})
	require.NotNil(t, first.RememberMe)
	assert.Equal(t, "laptop", first.RememberMe.DeviceID)

	rec := s.do(t, http.MethodPost, "/login/remember", RememberMeLoginRequest{
		IdentityID: first.IdentityID, DeviceID: "laptop", Token: first.RememberMe.Token,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	renewed := decode[LoginResponse](t, rec)
	assert.Equal(t, string(session.MethodRememberMe), renewed.Method)
	require.NotNil(t, renewed.RememberMe)
	assert.NotEqual(t, first.RememberMe.Token, renewed.RememberMe.Token)

	t.Run("InvalidIdentity", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/login/remember", RememberMeLoginRequest{IdentityID: "nope", DeviceID: "laptop", Token: "x"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("LogoutRevokesDevice", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/logout", nil, renewed.SessionToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = s.do(t, http.MethodPost, "/login/remember", RememberMeLoginRequest{
			IdentityID: first.IdentityID, DeviceID: "laptop", Token: renewed.RememberMe.Token,
		}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPasswordResetFlow(t *testing.T) {
	s := setupServer(t)

	for _, identifier := range []string{"ghost@example.com", "alice@example.com"} {
		rec := s.do(t, http.MethodPost, "/password/lost", LostPasswordRequest{Identifier: identifier}, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	sent := s.notifier.Sent()
	require.Len(t, sent, 1)

	link, err := url.Parse(sent[0].Data.Data["ResetLink"])
	require.NoError(t, err)
	reset := ResetPasswordRequest{
		IdentityID:  link.Query().Get("id"),
		Token:       link.Query().Get("token"),
		NewPassword: "reset-pass",
	}

	bad := reset
	bad.Token = "forged"
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/password/reset", bad, "").Code)

	rec := s.do(t, http.MethodPost, "/password/reset", reset, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s.login(t, LoginRequest{Identifier: "alice@example.com", Password: "reset-pass"})

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/password/reset", reset, "").Code)
}
