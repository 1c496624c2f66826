package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/infra/config"
	"github.com/acara/acara-auth/internal/infra/security"
	"github.com/acara/acara-auth/internal/repository"
	redisrepo "github.com/acara/acara-auth/internal/repository/redis"
	"github.com/acara/acara-auth/internal/transport/http/handlers"
	"github.com/acara/acara-auth/internal/transport/http/middleware"
	httproutes "github.com/acara/acara-auth/internal/transport/http/routes"
	"github.com/acara/acara-auth/internal/usecase"
)

// userStore is a map-backed port.UserRepository.
type userStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (s *userStore) Create(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email || u.UserName == user.UserName {
			return repository.ErrDuplicate
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *userStore) find(match func(domain.User) bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *userStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	return s.find(func(u domain.User) bool { return u.ID == id })
}

func (s *userStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.find(func(u domain.User) bool { return u.Email == email })
}

func (s *userStore) FindActiveByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	return s.find(func(u domain.User) bool {
		return u.IsActive && (u.Email == identifier || u.UserName == identifier)
	})
}

func (s *userStore) ActivateByCode(_ context.Context, code string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if !u.IsActive && u.ActivationCode != nil && *u.ActivationCode == code {
			u.IsActive = true
			u.ActivationCode = nil
			u.UpdatedAt = time.Now().UTC()
			s.users[id] = u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *userStore) ReplaceActivationCode(_ context.Context, id, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.IsActive {
		return repository.ErrNotFound
	}
	u.ActivationCode = &code
	s.users[id] = u
	return nil
}

type codeCapture struct {
	mu    sync.Mutex
	codes []string
}

func (c *codeCapture) NotifyActivation(_ context.Context, notice domain.ActivationNotice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes = append(c.codes, notice.Code)
	return nil
}

func (c *codeCapture) last(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.codes) == 0 {
		t.Fatal("no activation notice sent")
	}
	return c.codes[len(c.codes)-1]
}

type stack struct {
	router   *gin.Engine
	notifier *codeCapture
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Name: "acara-auth", Env: config.EnvDevelopment},
		RateLimit: config.RateLimitSettings{
			Enabled:           true,
			API:               config.RateLimitRule{Window: 15 * time.Minute, Max: 100, DevelopmentMax: 1000},
			Auth:              config.RateLimitRule{Window: 15 * time.Minute, Max: 5, DevelopmentMax: 3},
			EmailVerification: config.RateLimitRule{Window: time.Hour, Max: 5, DevelopmentMax: 30},
			Docs:              config.RateLimitRule{Window: 15 * time.Minute, Max: 200, DevelopmentMax: 2000},
		},
		CORS: config.CORSSettings{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func newStack(t *testing.T) stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	issuer, err := security.NewJWTIssuer(security.JWTConfig{Secret: strings.Repeat("k", 32), Issuer: "acara-auth", TTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := middleware.NewRateLimiter(redisrepo.NewRateLimitRepository(client, redisrepo.SlidingWindowConfig{KeyPrefix: "test", TTL: time.Hour}), log)

	users := &userStore{users: make(map[string]domain.User)}
	notifier := &codeCapture{}

	auth := usecase.NewAuthService(users, hasher, issuer, nil, log)
	registration := usecase.NewRegistrationService(users, hasher, security.NewPasswordPolicy(0), notifier, nil, log)

	router, err := httproutes.Register(httproutes.Dependencies{
		Config:      testConfig(),
		Logger:      log,
		RateLimiter: limiter,
		Services:    httproutes.ServiceSet{Auth: auth, Registration: registration},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return stack{router: router, notifier: notifier}
}

func call(t *testing.T, r http.Handler, method, path string, body any, token string) (*httptest.ResponseRecorder, handlers.Envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:5000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env handlers.Envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func dataField(t *testing.T, env handlers.Envelope, key string) any {
	t.Helper()
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %#v", env.Data)
	}
	return data[key]
}

func TestHealthEndpoint(t *testing.T) {
	s := newStack(t)

	rec, _ := call(t, s.router, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected security headers, got %v", rec.Header())
	}
	if rec.Header().Get(middleware.TraceIDHeader) == "" {
		t.Fatal("expected trace id header")
	}
}

func TestJaneScenario(t *testing.T) {
	s := newStack(t)

	rec, env := call(t, s.router, http.MethodPost, "/api/auth/register", map[string]string{
		"fullName":        "Jane Doe",
		"userName":        "jane",
		"email":           "jane@x.io",
		"password":        "Secret123",
		"confirmPassword": "Secret123",
	}, "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("register: %d %+v", rec.Code, env)
	}
	if dataField(t, env, "isActive") != false || dataField(t, env, "role") != "user" {
		t.Fatalf("register returned unexpected user: %+v", env.Data)
	}
	if strings.Contains(rec.Body.String(), "Secret123") {
		t.Fatal("register response leaks the password")
	}

	rec, env = call(t, s.router, http.MethodPost, "/api/auth/login", map[string]string{"identifier": "jane", "password": "Secret123"}, "")
	if rec.Code != http.StatusForbidden || env.Message != "user not found" {
		t.Fatalf("pending login: %d %+v", rec.Code, env)
	}

	code := s.notifier.last(t)
	rec, env = call(t, s.router, http.MethodPost, "/api/auth/activation", map[string]string{"code": code}, "")
	if rec.Code != http.StatusOK || dataField(t, env, "isActive") != true {
		t.Fatalf("activation: %d %+v", rec.Code, env)
	}

	rec, env = call(t, s.router, http.MethodPost, "/api/auth/activation", map[string]string{"code": code}, "")
	if rec.Code != http.StatusBadRequest || env.Message != "activation code not found" {
		t.Fatalf("reused code: %d %+v", rec.Code, env)
	}

	var token string
	for _, identifier := range []string{"jane", "jane@x.io"} {
		rec, env = call(t, s.router, http.MethodPost, "/api/auth/login", map[string]string{"identifier": identifier, "password": "Secret123"}, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("login with %s: %d %+v", identifier, rec.Code, env)
		}
		token, _ = dataField(t, env, "token").(string)
		if token == "" {
			t.Fatalf("login with %s returned no token", identifier)
		}
	}

	rec, env = call(t, s.router, http.MethodGet, "/api/auth/me", nil, token)
	if rec.Code != http.StatusOK || dataField(t, env, "userName") != "jane" {
		t.Fatalf("me: %d %+v", rec.Code, env)
	}

	rec, env = call(t, s.router, http.MethodGet, "/api/auth/me", nil, token+"x")
	if rec.Code != http.StatusUnauthorized || env.Message != "Unauthorized" {
		t.Fatalf("tampered token: %d %+v", rec.Code, env)
	}

	rec, env = call(t, s.router, http.MethodPost, "/api/auth/login", map[string]string{"identifier": "jane", "password": "Secret124"}, "")
	if rec.Code != http.StatusForbidden || env.Message != "invalid credentials" {
		t.Fatalf("wrong password: %d %+v", rec.Code, env)
	}

	rec, env = call(t, s.router, http.MethodPost, "/api/auth/register", map[string]string{
		"fullName":        "Jane Again",
		"userName":        "jane",
		"email":           "other@x.io",
		"password":        "Secret123",
		"confirmPassword": "Secret123",
	}, "")
	if rec.Code != http.StatusBadRequest || env.Success {
		t.Fatalf("duplicate register: %d %+v", rec.Code, env)
	}

	rec, env = call(t, s.router, http.MethodGet, "/api/users/anything", nil, token)
	if rec.Code != http.StatusForbidden || env.Message != "Insufficient permissions" {
		t.Fatalf("non-admin lookup: %d %+v", rec.Code, env)
	}
}

func TestAuthLimiterCountsOnlyFailedAttempts(t *testing.T) {
	s := newStack(t)

	for i := 0; i < 3; i++ {
		rec, _ := call(t, s.router, http.MethodPost, "/api/auth/login", map[string]string{"identifier": "ghost", "password": "Secret123"}, "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("attempt %d: expected 403, got %d", i+1, rec.Code)
		}
	}

	rec, env := call(t, s.router, http.MethodPost, "/api/auth/login", map[string]string{"identifier": "ghost", "password": "Secret123"}, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if !strings.HasPrefix(env.Message, "Too many authentication attempts") {
		t.Fatalf("unexpected message %q", env.Message)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// activation is not behind the auth limiter
	rec, _ = call(t, s.router, http.MethodPost, "/api/auth/activation", map[string]string{"code": "nope"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDocsServed(t *testing.T) {
	s := newStack(t)

	rec, _ := call(t, s.router, http.MethodGet, "/docs/openapi.yaml", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "openapi:") {
		t.Fatalf("expected OpenAPI document, got %d", rec.Code)
	}
}
