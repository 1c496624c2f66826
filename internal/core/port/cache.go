package port

import (
	"context"
	"time"

	"github.com/acara/acara-auth/internal/core/domain"
)

// SessionCache keeps short-lived copies of sessions keyed by token hash.
type SessionCache interface {
	Get(ctx context.Context, tokenHash string) (*domain.Session, bool, error)
	Set(ctx context.Context, session domain.Session, ttl time.Duration) error
	Delete(ctx context.Context, tokenHash string) error
}

// TokenDenylist records revoked token identifiers until they would have expired anyway.
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
