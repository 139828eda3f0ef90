package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/amazona/backend/internal/config"
	"github.com/amazona/backend/internal/logger"
	"github.com/amazona/backend/internal/model"
	"github.com/amazona/backend/internal/service"
	"github.com/amazona/backend/internal/testutil"
	"github.com/amazona/backend/internal/token"
)

const (
	testSecret     = "handler-secret"
	adminEmail     = "admin@example.com"
	adminPassword  = "adminpass"
	frontendOrigin = "http://shop.test"
)

type testServer struct {
	router *gin.Engine
	store  *testutil.MemoryStore
	mailer *testutil.Mailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	codec, err := token.NewCodec(testSecret)
	require.NoError(t, err)

	store := testutil.NewMemoryStore()
	mailer := testutil.NewMailer()
	log := logger.Discard()

	svc, err := service.NewUserService(store, codec, mailer, log,
		config.AuthConfig{SessionTTL: time.Hour, ResetTTL: 3 * time.Hour, BcryptCost: bcrypt.MinCost, BaseURL: frontendOrigin},
		config.AdminConfig{Name: "Admin", Email: adminEmail, Password: adminPassword},
	)
	require.NoError(t, err)
	require.NoError(t, svc.EnsureAdmin(context.Background()))
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	router := NewRouter(svc, log, config.HTTPConfig{AllowedOrigins: []string{frontendOrigin}, AllowCredentials: true})
	return &testServer{router: router, store: store, mailer: mailer}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) signup(t *testing.T, name, email, password string) model.UserResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/users/signup", "", model.SignupRequest{Name: name, Email: email, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[model.UserResponse](t, w)
}

func (s *testServer) signin(t *testing.T, email, password string) model.UserResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/users/signin", "", model.SigninRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[model.UserResponse](t, w)
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	return s.signin(t, adminEmail, adminPassword).Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[model.MessageResponse](t, w).Message
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/ping", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", message(t, w))

	w = s.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[model.RootResponse](t, w).Status)
}

func TestOpenAPIDoc(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/users/signin")
	assert.Contains(t, paths, "/api/users/reset-password")
}

func TestSignupAndSignin(t *testing.T) {
	s := newTestServer(t)

	created := s.signup(t, "Jane", "jane@example.com", "secret1")
	assert.Equal(t, "Jane", created.Name)
	assert.False(t, created.IsAdmin)
	assert.NotEmpty(t, created.Token)
	assert.NotEqual(t, uuid.Nil, created.ID)

	w := s.do(t, http.MethodPost, "/api/users/signup", "", model.SignupRequest{Name: "Jane", Email: "jane@example.com", Password: "other"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/users/signup", "", model.SignupRequest{Email: "x@example.com", Password: "p"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	signedIn := s.signin(t, "jane@example.com", "secret1")
	assert.Equal(t, created.ID, signedIn.ID)

	w = s.do(t, http.MethodPost, "/api/users/signin", "", model.SigninRequest{Email: "jane@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", message(t, w))

	w = s.do(t, http.MethodPost, "/api/users/signin", "", model.SigninRequest{Email: "nobody@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/users/signin", bytes.NewBufferString(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)
	jane := s.signup(t, "Jane", "jane@example.com", "secret1")

	expiredCodec, err := token.NewCodec(testSecret, token.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	require.NoError(t, err)
	expired, _, err := expiredCodec.Issue(jane.ID, token.KindSession, time.Hour)
	require.NoError(t, err)

	resetCodec, err := token.NewCodec(testSecret)
	require.NoError(t, err)
	resetKind, _, err := resetCodec.Issue(jane.ID, token.KindReset, time.Hour)
	require.NoError(t, err)

	foreignCodec, err := token.NewCodec("other-secret")
	require.NoError(t, err)
	foreign, _, err := foreignCodec.Issue(jane.ID, token.KindSession, time.Hour)
	require.NoError(t, err)

	ghost, _, err := resetCodec.Issue(uuid.New(), token.KindSession, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		code    int
		message string
	}{
		{name: "missing header", header: "", code: http.StatusUnauthorized, message: "No Token"},
		{name: "wrong scheme", header: "Basic " + jane.Token, code: http.StatusUnauthorized, message: "No Token"},
		{name: "scheme only", header: "Bearer ", code: http.StatusUnauthorized, message: "No Token"},
		{name: "garbage", header: "Bearer not-a-token", code: http.StatusUnauthorized, message: "Invalid Token"},
		{name: "expired", header: "Bearer " + expired, code: http.StatusUnauthorized, message: "Invalid Token"},
		{name: "reset token", header: "Bearer " + resetKind, code: http.StatusUnauthorized, message: "Invalid Token"},
		{name: "foreign secret", header: "Bearer " + foreign, code: http.StatusUnauthorized, message: "Invalid Token"},
		{name: "unknown subject", header: "Bearer " + ghost, code: http.StatusUnauthorized, message: "Invalid Token"},
		{name: "valid", header: "Bearer " + jane.Token, code: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + jane.Token, code: http.StatusOK},
		{name: "uppercase scheme", header: "BEARER " + jane.Token, code: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/users/profile", bytes.NewBufferString(`{}`))
			req.Header.Set("Content-Type", "application/json")
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			require.Equal(t, tc.code, w.Code, w.Body.String())
			if tc.message != "" {
				assert.Equal(t, tc.message, message(t, w))
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer abc", want: "abc", ok: true},
		{header: "  Bearer   abc  ", want: "abc", ok: true},
		{header: "Bearer", ok: false},
		{header: "Token abc", ok: false},
		{header: "", ok: false},
	}

	for _, tc := range tests {
		got, ok := bearerToken(tc.header)
		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.want, got, tc.header)
	}
}

func TestUpdateProfile(t *testing.T) {
	s := newTestServer(t)
	jane := s.signup(t, "Jane", "jane@example.com", "secret1")

	w := s.do(t, http.MethodPut, "/api/users/profile", jane.Token, model.ProfileUpdateRequest{Name: "Jane Doe", Password: "secret2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[model.UserResponse](t, w)
	assert.Equal(t, "Jane Doe", updated.Name)
	assert.Equal(t, "jane@example.com", updated.Email)
	assert.NotEmpty(t, updated.Token)

	s.signin(t, "jane@example.com", "secret2")

	s.signup(t, "Bob", "bob@example.com", "secret1")
	w = s.do(t, http.MethodPut, "/api/users/profile", updated.Token, model.ProfileUpdateRequest{Email: "bob@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	s := newTestServer(t)
	jane := s.signup(t, "Jane", "jane@example.com", "secret1")

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/users/"},
		{http.MethodGet, "/api/users/" + jane.ID.String()},
		{http.MethodPut, "/api/users/" + jane.ID.String()},
		{http.MethodDelete, "/api/users/" + jane.ID.String()},
	}

	for _, r := range routes {
		w := s.do(t, r.method, r.path, jane.Token, model.AdminUpdateRequest{IsAdmin: true})
		assert.Equal(t, http.StatusUnauthorized, w.Code, r.method+" "+r.path)
		assert.Equal(t, "Invalid Admin Token", message(t, w))

		w = s.do(t, r.method, r.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "No Token", message(t, w))
	}

	stored, err := s.store.GetUserByID(context.Background(), jane.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsAdmin)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)
	jane := s.signup(t, "Jane", "jane@example.com", "secret1")

	w := s.do(t, http.MethodGet, "/api/users/", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]model.UserResponse](t, w)
	assert.Len(t, list, 2)
	for _, u := range list {
		assert.Empty(t, u.Token)
	}

	w = s.do(t, http.MethodGet, "/api/users/"+jane.ID.String(), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jane@example.com", decode[model.UserResponse](t, w).Email)

	w = s.do(t, http.MethodGet, "/api/users/"+uuid.NewString(), admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User Not Found", message(t, w))

	w = s.do(t, http.MethodGet, "/api/users/not-a-uuid", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/users/"+jane.ID.String(), admin, model.AdminUpdateRequest{Name: "Janet", IsAdmin: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[model.UserUpdatedResponse](t, w)
	assert.Equal(t, "User Updated", updated.Message)
	assert.Equal(t, "Janet", updated.User.Name)
	assert.True(t, updated.User.IsAdmin)

	w = s.do(t, http.MethodDelete, "/api/users/"+jane.ID.String(), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User Deleted", message(t, w))

	w = s.do(t, http.MethodDelete, "/api/users/"+jane.ID.String(), admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// deleted subject can no longer authenticate
	w = s.do(t, http.MethodPut, "/api/users/profile", jane.Token, model.ProfileUpdateRequest{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid Token", message(t, w))
}

func TestListUsers_WithAndWithoutTrailingSlash(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)

	for _, path := range []string{"/api/users", "/api/users/"} {
		w := s.do(t, http.MethodGet, path, admin, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Len(t, decode[[]model.UserResponse](t, w), 1, path)
	}

	w := s.do(t, http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "No Token", message(t, w))
}

func TestAdminRoutes_BootstrapAdminProtected(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)

	stored, err := s.store.GetUserByEmail(context.Background(), adminEmail)
	require.NoError(t, err)
	path := "/api/users/" + stored.ID.String()

	w := s.do(t, http.MethodDelete, path, admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Can Not Delete Admin User", message(t, w))

	w = s.do(t, http.MethodPut, path, admin, model.AdminUpdateRequest{Name: "Root", IsAdmin: false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[model.UserUpdatedResponse](t, w).User.IsAdmin)

	w = s.do(t, http.MethodPut, path, admin, model.AdminUpdateRequest{Email: "root@example.com", IsAdmin: true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Can Not Change Admin Email", message(t, w))

	after, err := s.store.GetUserByID(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, adminEmail, after.Email)
	assert.True(t, after.IsAdmin)
}

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "Jane", "jane@example.com", "secret1")

	w := s.do(t, http.MethodPost, "/api/users/forget-password", "", model.ForgotPasswordRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/users/forget-password", "", model.ForgotPasswordRequest{Email: "jane@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "We sent reset password link to your email.", message(t, w))

	select {
	case msg := <-s.mailer.Sent:
		assert.Contains(t, msg.To, "jane@example.com")
		assert.Contains(t, msg.HTML, frontendOrigin+"/reset-password/")
	case <-time.After(2 * time.Second):
		t.Fatal("no reset mail sent")
	}

	stored, err := s.store.GetUserByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.ResetToken)
	resetToken := *stored.ResetToken

	w = s.do(t, http.MethodPost, "/api/users/reset-password", "", model.ResetPasswordRequest{Token: "garbage", Password: "newpass123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/users/reset-password", "", model.ResetPasswordRequest{Token: resetToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/users/reset-password", "", model.ResetPasswordRequest{Token: resetToken, Password: "newpass123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Password reset successfully", message(t, w))

	s.signin(t, "jane@example.com", "newpass123")
	w = s.do(t, http.MethodPost, "/api/users/signin", "", model.SigninRequest{Email: "jane@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// a redeemed token can not be used twice
	w = s.do(t, http.MethodPost, "/api/users/reset-password", "", model.ResetPasswordRequest{Token: resetToken, Password: "another1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/users/profile", nil)
	req.Header.Set("Origin", frontendOrigin)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, frontendOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
