package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
)

const defaultSessionCachePrefix = "acara:session"

// SessionCacheRepository keeps serialised sessions keyed by token hash.
type SessionCacheRepository struct {
	client *red.Client
	prefix string
}

// NewSessionCacheRepository wires a Redis client into the session cache.
func NewSessionCacheRepository(client *red.Client, keyPrefix string) *SessionCacheRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionCachePrefix
	}
	return &SessionCacheRepository{client: client, prefix: prefix}
}

type cachedSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	TokenHash string    `json:"token_hash"`
	IP        *string   `json:"ip,omitempty"`
	UserAgent *string   `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get returns the cached session for tokenHash, reporting false on a miss.
func (r *SessionCacheRepository) Get(ctx context.Context, tokenHash string) (*domain.Session, bool, error) {
	data, err := r.client.Get(ctx, r.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get session: %w", err)
	}

	var cached cachedSession
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, fmt.Errorf("decode cached session: %w", err)
	}

	return &domain.Session{
		ID:        cached.ID,
		UserID:    cached.UserID,
		Role:      domain.Role(cached.Role),
		TokenHash: cached.TokenHash,
		IP:        cached.IP,
		UserAgent: cached.UserAgent,
		CreatedAt: cached.CreatedAt,
		UpdatedAt: cached.UpdatedAt,
		ExpiresAt: cached.ExpiresAt,
	}, true, nil
}

// Set caches session for ttl.
func (r *SessionCacheRepository) Set(ctx context.Context, session domain.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(cachedSession{
		ID:        session.ID,
		UserID:    session.UserID,
		Role:      string(session.Role),
		TokenHash: session.TokenHash,
		IP:        session.IP,
		UserAgent: session.UserAgent,
		CreatedAt: session.CreatedAt.UTC(),
		UpdatedAt: session.UpdatedAt.UTC(),
		ExpiresAt: session.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := r.client.Set(ctx, r.key(session.TokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Delete drops the cached copy of a session.
func (r *SessionCacheRepository) Delete(ctx context.Context, tokenHash string) error {
	if err := r.client.Del(ctx, r.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}

func (r *SessionCacheRepository) key(tokenHash string) string {
	return fmt.Sprintf("%s:%s", r.prefix, tokenHash)
}

var _ port.SessionCache = (*SessionCacheRepository)(nil)
