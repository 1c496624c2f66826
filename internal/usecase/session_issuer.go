package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/infra/security"
	"github.com/acara/acara-auth/internal/repository"
)

// SessionPolicy configures the lifetime of server-side sessions.
type SessionPolicy struct {
	// ExpiresIn is how long a session stays valid after its last refresh.
	ExpiresIn time.Duration
	// UpdateAge is how long after a refresh the next verification extends the session.
	UpdateAge time.Duration
	// MaxLifetime caps rolling extensions, measured from creation.
	MaxLifetime time.Duration
	// CacheTTL bounds how long a session lookup is served from cache.
	CacheTTL time.Duration
}

// SessionIssuer hands out opaque session tokens. Only the SHA-256 of a token
// is stored, so a leaked table does not yield usable credentials.
type SessionIssuer struct {
	sessions port.SessionRepository
	cache    port.SessionCache
	policy   SessionPolicy
	log      *zap.Logger
	now      func() time.Time
}

// NewSessionIssuer wires the session strategy. cache may be nil.
func NewSessionIssuer(sessions port.SessionRepository, cache port.SessionCache, policy SessionPolicy, log *zap.Logger) (*SessionIssuer, error) {
	if sessions == nil {
		return nil, errors.New("session repository is required")
	}
	if policy.ExpiresIn <= 0 {
		return nil, errors.New("session lifetime must be positive")
	}
	if policy.MaxLifetime > 0 && policy.MaxLifetime < policy.ExpiresIn {
		return nil, errors.New("session max lifetime must not be shorter than its lifetime")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionIssuer{
		sessions: sessions,
		cache:    cache,
		policy:   policy,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Kind reports the credential strategy.
func (i *SessionIssuer) Kind() domain.CredentialKind {
	return domain.CredentialSession
}

// Issue opens a session for claims and returns its raw token.
func (i *SessionIssuer) Issue(ctx context.Context, claims domain.Claims, meta domain.IssueMetadata) (domain.Credential, error) {
	if claims.SubjectID == "" {
		return domain.Credential{}, errors.New("session subject is required")
	}

	token, err := security.NewSessionToken()
	if err != nil {
		return domain.Credential{}, fmt.Errorf("generate session token: %w", err)
	}

	now := i.now()
	session := domain.Session{
		ID:        uuid.NewString(),
		UserID:    claims.SubjectID,
		Role:      claims.Role,
		TokenHash: security.TokenDigest(token),
		IP:        optional(meta.IP),
		UserAgent: optional(meta.UserAgent),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(i.policy.ExpiresIn),
	}

	if err := i.sessions.Create(ctx, session); err != nil {
		return domain.Credential{}, fmt.Errorf("create session: %w", err)
	}
	i.cacheSession(ctx, session)

	return domain.Credential{
		Kind:      domain.CredentialSession,
		Token:     token,
		ID:        session.ID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Verify resolves raw to a live session, refreshing it once UpdateAge has passed.
func (i *SessionIssuer) Verify(ctx context.Context, raw string) (domain.Claims, error) {
	session, err := i.lookup(ctx, raw)
	if err != nil {
		return domain.Claims{}, err
	}

	now := i.now()
	if !session.IsActive(now) {
		i.drop(ctx, *session)
		return domain.Claims{}, fmt.Errorf("%w: session expired", domain.ErrInvalidToken)
	}

	if session.NeedsRefresh(now, i.policy.UpdateAge) {
		if session.Extend(now, i.policy.ExpiresIn, i.policy.MaxLifetime) {
			if err := i.sessions.Extend(ctx, session.ID, session.UpdatedAt, session.ExpiresAt); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Claims{}, fmt.Errorf("%w: session revoked", domain.ErrInvalidToken)
				}
				return domain.Claims{}, fmt.Errorf("extend session: %w", err)
			}
			i.cacheSession(ctx, *session)
		}
	}

	return domain.Claims{
		SubjectID:    session.UserID,
		Role:         session.Role,
		CredentialID: session.ID,
		IssuedAt:     session.CreatedAt,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// Revoke deletes the session behind raw.
func (i *SessionIssuer) Revoke(ctx context.Context, raw string) error {
	session, err := i.lookup(ctx, raw)
	if err != nil {
		return err
	}
	if err := i.sessions.Delete(ctx, session.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	i.evict(ctx, session.TokenHash)
	return nil
}

// Sweep removes expired sessions and reports how many were deleted.
func (i *SessionIssuer) Sweep(ctx context.Context) (int64, error) {
	removed, err := i.sessions.DeleteExpired(ctx, i.now())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return removed, nil
}

func (i *SessionIssuer) lookup(ctx context.Context, raw string) (*domain.Session, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", domain.ErrInvalidToken)
	}
	hash := security.TokenDigest(raw)

	if i.cache != nil {
		cached, ok, err := i.cache.Get(ctx, hash)
		if err != nil {
			i.log.Warn("session cache read failed", zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	session, err := i.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown session", domain.ErrInvalidToken)
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	return session, nil
}

func (i *SessionIssuer) cacheSession(ctx context.Context, session domain.Session) {
	if i.cache == nil || i.policy.CacheTTL <= 0 {
		return
	}
	ttl := i.policy.CacheTTL
	if remaining := session.ExpiresAt.Sub(i.now()); remaining < ttl {
		ttl = remaining
	}
	if err := i.cache.Set(ctx, session, ttl); err != nil {
		i.log.Warn("session cache write failed", zap.String("session_id", session.ID), zap.Error(err))
	}
}

func (i *SessionIssuer) drop(ctx context.Context, session domain.Session) {
	if err := i.sessions.Delete(ctx, session.ID); err != nil {
		i.log.Warn("delete expired session failed", zap.String("session_id", session.ID), zap.Error(err))
	}
	i.evict(ctx, session.TokenHash)
}

func (i *SessionIssuer) evict(ctx context.Context, tokenHash string) {
	if i.cache == nil {
		return
	}
	if err := i.cache.Delete(ctx, tokenHash); err != nil {
		i.log.Warn("session cache eviction failed", zap.Error(err))
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

var _ port.CredentialIssuer = (*SessionIssuer)(nil)
