package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/transport/http/middleware"
	"github.com/acara/acara-auth/internal/usecase"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeAuth struct {
	loginResult usecase.LoginResult
	loginErr    error
	lastLogin   usecase.LoginInput
	tokens      map[string]domain.Claims
	users       map[string]domain.User
	loggedOut   []string
}

func (f *fakeAuth) Login(_ context.Context, in usecase.LoginInput) (usecase.LoginResult, error) {
	f.lastLogin = in
	return f.loginResult, f.loginErr
}

func (f *fakeAuth) Authenticate(_ context.Context, raw string) (domain.Claims, error) {
	claims, ok := f.tokens[raw]
	if !ok {
		return domain.Claims{}, domain.ErrInvalidToken
	}
	return claims, nil
}

func (f *fakeAuth) Profile(_ context.Context, claims domain.Claims) (domain.User, error) {
	user, ok := f.users[claims.SubjectID]
	if !ok {
		return domain.User{}, usecase.ErrSubjectGone
	}
	return user, nil
}

func (f *fakeAuth) Logout(_ context.Context, raw string) error {
	f.loggedOut = append(f.loggedOut, raw)
	return nil
}

func (f *fakeAuth) GetUser(_ context.Context, id string) (domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return domain.User{}, usecase.ErrAccountNotFound
	}
	return user, nil
}

type fakeRegistration struct {
	registered  []usecase.RegisterInput
	registerErr error
	activateErr error
	resent      []string
}

func (f *fakeRegistration) Register(_ context.Context, in usecase.RegisterInput) (domain.User, error) {
	if f.registerErr != nil {
		return domain.User{}, f.registerErr
	}
	f.registered = append(f.registered, in)
	return domain.User{ID: "u-1", FullName: in.FullName, UserName: in.UserName, Email: in.Email, Role: domain.RoleUser}, nil
}

func (f *fakeRegistration) Activate(_ context.Context, code string) (domain.User, error) {
	if f.activateErr != nil {
		return domain.User{}, f.activateErr
	}
	return domain.User{ID: "u-1", IsActive: true}, nil
}

func (f *fakeRegistration) ResendActivation(_ context.Context, email string) error {
	f.resent = append(f.resent, email)
	return nil
}

type countingRecorder struct {
	counts map[string]int
}

func (r *countingRecorder) Record(operation, outcome string) {
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[operation+"/"+outcome]++
}

func newTestRouter(auth *fakeAuth, reg *fakeRegistration, opts ...AuthHandlerOption) *gin.Engine {
	r := gin.New()
	r.Use(middleware.EnrichContext())

	opts = append([]AuthHandlerOption{WithRegistrationService(reg)}, opts...)
	NewAuthHandler(auth, opts...).RegisterRoutes(r.Group("/api/auth"), AuthRouteLimits{})

	users := NewUserHandler(auth, nil, false)
	r.GET("/api/users/:id", middleware.RequireAuth(auth), middleware.RequireRole(domain.RoleAdmin), users.GetUser)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, header http.Header) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env Envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func validRegistration() map[string]string {
	return map[string]string{
		"fullName":        "jane doe",
		"userName":        "jane",
		"email":           "jane@x.io",
		"password":        "Secret123",
		"confirmPassword": "Secret123",
	}
}

func TestRegister_Success(t *testing.T) {
	reg := &fakeRegistration{}
	r := newTestRouter(&fakeAuth{}, reg)

	rec, env := doJSON(t, r, http.MethodPost, "/api/auth/register", validRegistration(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !env.Success || env.Message != "Success Registration" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if len(reg.registered) != 1 || reg.registered[0].ConfirmPassword != "Secret123" {
		t.Fatalf("registration input not forwarded: %+v", reg.registered)
	}
	for _, leaked := range []string{"password", "activationCode"} {
		if strings.Contains(rec.Body.String(), `"`+leaked) {
			t.Fatalf("response leaks %s: %s", leaked, rec.Body.String())
		}
	}
	if env.TraceID == "" {
		t.Fatal("expected trace id in envelope")
	}
}

func TestRegister_BindingFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(map[string]string)
		message string
	}{
		{"missing full name", func(b map[string]string) { delete(b, "fullName") }, "fullName is required"},
		{"bad email", func(b map[string]string) { b["email"] = "jane" }, "email must be a valid email address"},
		{"confirmation differs", func(b map[string]string) { b["confirmPassword"] = "Secret124" }, "Password not match"},
		{"weak password", func(b map[string]string) { b["password"], b["confirmPassword"] = "secret", "secret" }, "password must be at least 8 characters"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := &fakeRegistration{}
			r := newTestRouter(&fakeAuth{}, reg)

			body := validRegistration()
			tc.mutate(body)

			rec, env := doJSON(t, r, http.MethodPost, "/api/auth/register", body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if env.Success || !strings.HasPrefix(env.Message, tc.message) {
				t.Fatalf("expected message %q, got %+v", tc.message, env)
			}
			if len(reg.registered) != 0 {
				t.Fatal("usecase must not run on binding failure")
			}
		})
	}
}

func TestRegister_ConflictIs400(t *testing.T) {
	r := newTestRouter(&fakeAuth{}, &fakeRegistration{registerErr: usecase.ErrUserConflict})

	rec, env := doJSON(t, r, http.MethodPost, "/api/auth/register", validRegistration(), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Success || env.Message != usecase.ErrUserConflict.Error() {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestLogin_Success(t *testing.T) {
	expires := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	auth := &fakeAuth{loginResult: usecase.LoginResult{
		Credential: domain.Credential{Kind: domain.CredentialJWT, Token: "tok", ExpiresAt: expires},
		User:       domain.User{ID: "u-1", UserName: "jane", IsActive: true},
	}}
	metrics := &countingRecorder{}
	r := newTestRouter(auth, &fakeRegistration{}, WithOutcomeRecorder(metrics))

	rec, env := doJSON(t, r, http.MethodPost, "/api/auth/login",
		map[string]string{"identifier": " jane ", "password": "Secret123"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if auth.lastLogin.Identifier != "jane" {
		t.Fatalf("identifier not trimmed: %q", auth.lastLogin.Identifier)
	}

	data, _ := json.Marshal(env.Data)
	var resp LoginResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token != "tok" || resp.TokenType != "Bearer" || !resp.ExpiresAt.Equal(expires) || resp.User.ID != "u-1" {
		t.Fatalf("unexpected login response: %+v", resp)
	}
	if metrics.counts["login/success"] != 1 {
		t.Fatalf("expected login success recorded, got %v", metrics.counts)
	}
}

func TestLogin_FailuresMapToStatus(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		dev     bool
		status  int
		message string
		outcome string
	}{
		{"unknown user", usecase.ErrUserNotFound, false, http.StatusForbidden, "user not found", "rejected"},
		{"wrong password", usecase.ErrInvalidCredentials, false, http.StatusForbidden, "invalid credentials", "rejected"},
		{"store failure hidden", errors.New("mongo: connection reset"), false, http.StatusInternalServerError, "internal server error", "error"},
		{"store failure exposed in development", errors.New("mongo: connection reset"), true, http.StatusInternalServerError, "mongo: connection reset", "error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &countingRecorder{}
			r := newTestRouter(&fakeAuth{loginErr: tc.err}, &fakeRegistration{},
				WithOutcomeRecorder(metrics), WithDevMode(tc.dev))

			rec, env := doJSON(t, r, http.MethodPost, "/api/auth/login",
				map[string]string{"identifier": "jane", "password": "nope"}, nil)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if env.Success || env.Message != tc.message || env.Data != nil {
				t.Fatalf("unexpected envelope: %+v", env)
			}
			if metrics.counts["login/"+tc.outcome] != 1 {
				t.Fatalf("expected outcome %s, got %v", tc.outcome, metrics.counts)
			}
		})
	}
}

func TestLogin_MissingFields(t *testing.T) {
	r := newTestRouter(&fakeAuth{}, &fakeRegistration{})

	rec, env := doJSON(t, r, http.MethodPost, "/api/auth/login", map[string]string{"identifier": "jane"}, nil)
	if rec.Code != http.StatusBadRequest || env.Message != "password is required" {
		t.Fatalf("unexpected response %d %+v", rec.Code, env)
	}
}

func TestMe(t *testing.T) {
	auth := &fakeAuth{
		tokens: map[string]domain.Claims{
			"good":    {SubjectID: "u-1", Role: domain.RoleUser},
			"pending": {SubjectID: "u-2", Role: domain.RoleUser},
			"gone":    {SubjectID: "u-3", Role: domain.RoleUser},
		},
		users: map[string]domain.User{
			"u-1": {ID: "u-1", UserName: "jane", IsActive: true},
			"u-2": {ID: "u-2", UserName: "john"},
		},
	}
	r := newTestRouter(auth, &fakeRegistration{})

	cases := []struct {
		name    string
		header  http.Header
		status  int
		message string
	}{
		{"no header", nil, http.StatusUnauthorized, "Unauthorized"},
		{"wrong scheme", http.Header{"Authorization": []string{"Basic good"}}, http.StatusUnauthorized, "Unauthorized"},
		{"unknown token", bearer("forged"), http.StatusUnauthorized, "Unauthorized"},
		{"deleted subject", bearer("gone"), http.StatusUnauthorized, "Unauthorized"},
		{"pending account", bearer("pending"), http.StatusForbidden, "Account not activated. Please verify your email."},
		{"active account", bearer("good"), http.StatusOK, "Success get user profile"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := doJSON(t, r, http.MethodGet, "/api/auth/me", nil, tc.header)
			if rec.Code != tc.status || env.Message != tc.message {
				t.Fatalf("expected %d %q, got %d %+v", tc.status, tc.message, rec.Code, env)
			}
		})
	}
}

func TestLogout_RevokesPresentedCredential(t *testing.T) {
	auth := &fakeAuth{
		tokens: map[string]domain.Claims{"good": {SubjectID: "u-1"}},
		users:  map[string]domain.User{"u-1": {ID: "u-1", IsActive: true}},
	}
	r := newTestRouter(auth, &fakeRegistration{})

	rec, _ := doJSON(t, r, http.MethodPost, "/api/auth/logout", nil, bearer("good"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(auth.loggedOut) != 1 || auth.loggedOut[0] != "good" {
		t.Fatalf("expected credential revoked, got %v", auth.loggedOut)
	}
}

func TestActivate(t *testing.T) {
	r := newTestRouter(&fakeAuth{}, &fakeRegistration{activateErr: usecase.ErrActivationCodeInvalid})

	rec, env := doJSON(t, r, http.MethodPost, "/api/auth/activation", map[string]string{"code": "nope"}, nil)
	if rec.Code != http.StatusBadRequest || env.Message != "activation code not found" {
		t.Fatalf("unexpected response %d %+v", rec.Code, env)
	}

	rec, env = doJSON(t, r, http.MethodPost, "/api/auth/activation", map[string]string{}, nil)
	if rec.Code != http.StatusBadRequest || env.Message != "code is required" {
		t.Fatalf("unexpected response %d %+v", rec.Code, env)
	}
}

func TestResendActivation(t *testing.T) {
	reg := &fakeRegistration{}
	r := newTestRouter(&fakeAuth{}, reg)

	rec, env := doJSON(t, r, http.MethodPost, "/api/auth/activation/resend", map[string]string{"email": "ghost@x.io"}, nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("unexpected response %d %+v", rec.Code, env)
	}
	if len(reg.resent) != 1 || reg.resent[0] != "ghost@x.io" {
		t.Fatalf("expected resend forwarded, got %v", reg.resent)
	}
}

func TestGetUser(t *testing.T) {
	auth := &fakeAuth{
		tokens: map[string]domain.Claims{
			"admin": {SubjectID: "a-1", Role: domain.RoleAdmin},
			"user":  {SubjectID: "u-1", Role: domain.RoleUser},
		},
		users: map[string]domain.User{"u-1": {ID: "u-1", UserName: "jane"}},
	}
	r := newTestRouter(auth, &fakeRegistration{})

	rec, env := doJSON(t, r, http.MethodGet, "/api/users/u-1", nil, bearer("user"))
	if rec.Code != http.StatusForbidden || env.Message != "Insufficient permissions" {
		t.Fatalf("unexpected response %d %+v", rec.Code, env)
	}

	rec, _ = doJSON(t, r, http.MethodGet, "/api/users/u-1", nil, bearer("admin"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec, env = doJSON(t, r, http.MethodGet, "/api/users/missing", nil, bearer("admin"))
	if rec.Code != http.StatusNotFound || env.Message != "user not found" {
		t.Fatalf("unexpected response %d %+v", rec.Code, env)
	}
}

type stubCheck struct {
	name string
	err  error
}

func (s stubCheck) Name() string { return s.name }

func (s stubCheck) HealthCheck(context.Context) error { return s.err }

func TestHealth(t *testing.T) {
	h := NewHealthHandler(stubCheck{name: "mongo"}, stubCheck{name: "redis", err: errors.New("dial tcp: refused")})
	r := gin.New()
	r.GET("/healthz", h.Status)
	r.GET("/readyz", h.Ready)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["mongo"] != "ok" || resp.Checks["redis"] == "ok" {
		t.Fatalf("unexpected checks: %v", resp.Checks)
	}
}

func TestSwaggerServesDocument(t *testing.T) {
	r := gin.New()
	RegisterSwagger(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/openapi.yaml", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/auth/login:") {
		t.Fatal("expected embedded OpenAPI document")
	}
}
