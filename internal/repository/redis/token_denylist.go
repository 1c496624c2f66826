package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/acara/acara-auth/internal/core/port"
)

const defaultDenylistPrefix = "acara:revoked_jti"

// TokenDenylistRepository stores revoked JWT identifiers until their natural expiry.
type TokenDenylistRepository struct {
	client *red.Client
	prefix string
}

// NewTokenDenylistRepository wires a Redis client into a denylist repository.
func NewTokenDenylistRepository(client *red.Client, keyPrefix string) *TokenDenylistRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultDenylistPrefix
	}
	return &TokenDenylistRepository{client: client, prefix: prefix}
}

// Revoke records jti as revoked for ttl.
func (r *TokenDenylistRepository) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// token is already past its expiry, nothing to remember
		return nil
	}

	key := r.key(jti)
	if key == "" {
		return errors.New("jti must not be empty")
	}

	if err := r.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked jti: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti has been revoked.
func (r *TokenDenylistRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	key := r.key(jti)
	if key == "" {
		return false, errors.New("jti must not be empty")
	}

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists revoked jti: %w", err)
	}
	return n > 0, nil
}

func (r *TokenDenylistRepository) key(jti string) string {
	trimmed := strings.TrimSpace(jti)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.TokenDenylist = (*TokenDenylistRepository)(nil)
