package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/infra/security"
	"github.com/acara/acara-auth/internal/repository"
)

type memoryUserRepository struct {
	mu    sync.Mutex
	users map[string]domain.User

	createErr error
}

func newMemoryUserRepository() *memoryUserRepository {
	return &memoryUserRepository{users: make(map[string]domain.User)}
}

func (m *memoryUserRepository) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.users {
		if existing.Email == user.Email || existing.UserName == user.UserName {
			return repository.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (m *memoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUserRepository) FindActiveByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.IsActive && (user.Email == identifier || user.UserName == identifier) {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUserRepository) ActivateByCode(_ context.Context, code string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, user := range m.users {
		if !user.IsActive && user.ActivationCode != nil && *user.ActivationCode == code {
			user.IsActive = true
			user.ActivationCode = nil
			user.UpdatedAt = time.Now().UTC()
			m.users[id] = user
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryUserRepository) ReplaceActivationCode(_ context.Context, id, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok || user.IsActive {
		return repository.ErrNotFound
	}
	user.ActivationCode = &code
	m.users[id] = user
	return nil
}

func (m *memoryUserRepository) only(t *testing.T) domain.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.users) != 1 {
		t.Fatalf("expected exactly one stored user, got %d", len(m.users))
	}
	for _, user := range m.users {
		return user
	}
	return domain.User{}
}

type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	extends  int
}

func newMemorySessionRepository() *memorySessionRepository {
	return &memorySessionRepository{sessions: make(map[string]domain.Session)}
}

func (m *memorySessionRepository) Create(_ context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *memorySessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		if session.TokenHash == tokenHash {
			s := session
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memorySessionRepository) Extend(_ context.Context, id string, updatedAt, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	session.UpdatedAt = updatedAt
	session.ExpiresAt = expiresAt
	m.sessions[id] = session
	m.extends++
	return nil
}

func (m *memorySessionRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memorySessionRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, session := range m.sessions {
		if session.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

type memorySessionCache struct {
	mu      sync.Mutex
	entries map[string]domain.Session
	ttls    map[string]time.Duration
	getErr  error
}

func newMemorySessionCache() *memorySessionCache {
	return &memorySessionCache{entries: make(map[string]domain.Session), ttls: make(map[string]time.Duration)}
}

func (m *memorySessionCache) Get(_ context.Context, tokenHash string) (*domain.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	session, ok := m.entries[tokenHash]
	if !ok {
		return nil, false, nil
	}
	return &session, true, nil
}

func (m *memorySessionCache) Set(_ context.Context, session domain.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[session.TokenHash] = session
	m.ttls[session.TokenHash] = ttl
	return nil
}

func (m *memorySessionCache) Delete(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, tokenHash)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.ActivationNotice
	err     error
}

func (r *recordingNotifier) NotifyActivation(_ context.Context, notice domain.ActivationNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
	return r.err
}

type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.UserRegisteredEvent
	activated  []domain.UserActivatedEvent
	loggedIn   []domain.UserLoggedInEvent
	err        error
}

func (r *recordingPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, event)
	return r.err
}

func (r *recordingPublisher) PublishUserActivated(_ context.Context, event domain.UserActivatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activated = append(r.activated, event)
	return r.err
}

func (r *recordingPublisher) PublishUserLoggedIn(_ context.Context, event domain.UserLoggedInEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggedIn = append(r.loggedIn, event)
	return r.err
}

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) {
	return "", errors.New("hasher offline")
}

func (failingHasher) Verify(string, string) (bool, error) {
	return false, errors.New("hasher offline")
}

func newTestHasher(t *testing.T) *security.Argon2Hasher {
	t.Helper()
	h, err := security.NewArgon2Hasher(security.Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return h
}

func newTestJWTIssuer(t *testing.T) *security.JWTIssuer {
	t.Helper()
	issuer, err := security.NewJWTIssuer(security.JWTConfig{Secret: strings.Repeat("s", 32), Issuer: "acara-auth", TTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("NewJWTIssuer returned error: %v", err)
	}
	return issuer
}

func janeInput() RegisterInput {
	return RegisterInput{
		FullName:        "Jane Doe",
		UserName:        "jane",
		Email:           "jane@x.io",
		Password:        "Secret123",
		ConfirmPassword: "Secret123",
	}
}
