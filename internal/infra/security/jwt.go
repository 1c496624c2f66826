package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
)

// MinSecretLength is the shortest HMAC secret accepted for signing.
const MinSecretLength = 32

// ErrSecretTooShort is returned when the signing secret is below MinSecretLength bytes.
var ErrSecretTooShort = fmt.Errorf("jwt: secret must be at least %d bytes", MinSecretLength)

// AccessTokenClaims carries the subject id and role alongside registered claims.
type AccessTokenClaims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTConfig configures the HS256 issuer.
type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// JWTIssuer mints and verifies stateless HS256 access tokens. Logout is
// honoured through an optional denylist keyed by jti.
type JWTIssuer struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	denylist port.TokenDenylist
	now      func() time.Time
}

// NewJWTIssuer validates cfg and returns an issuer. denylist may be nil, in
// which case revocation is a no-op.
func NewJWTIssuer(cfg JWTConfig, denylist port.TokenDenylist) (*JWTIssuer, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("jwt: ttl must be positive")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errors.New("jwt: issuer is required")
	}

	return &JWTIssuer{
		secret:   []byte(cfg.Secret),
		issuer:   issuer,
		ttl:      cfg.TTL,
		denylist: denylist,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Kind reports the credential strategy.
func (i *JWTIssuer) Kind() domain.CredentialKind {
	return domain.CredentialJWT
}

// Issue signs a token for claims that expires after the configured TTL.
func (i *JWTIssuer) Issue(_ context.Context, claims domain.Claims, _ domain.IssueMetadata) (domain.Credential, error) {
	subject := strings.TrimSpace(claims.SubjectID)
	if subject == "" {
		return domain.Credential{}, errors.New("jwt: subject is required")
	}

	now := i.now()
	jti := uuid.NewString()
	expiresAt := jwt.NewNumericDate(now.Add(i.ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		UserID: subject,
		Role:   string(claims.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
			ID:        jti,
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	return domain.Credential{
		Kind:      domain.CredentialJWT,
		Token:     signed,
		ID:        jti,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// Verify checks signature, issuer and expiry, then consults the denylist.
// Every failure is reported as domain.ErrInvalidToken.
func (i *JWTIssuer) Verify(ctx context.Context, raw string) (domain.Claims, error) {
	claims, err := i.parse(raw)
	if err != nil {
		return domain.Claims{}, err
	}

	if i.denylist != nil {
		revoked, err := i.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return domain.Claims{}, fmt.Errorf("jwt: check denylist: %w", err)
		}
		if revoked {
			return domain.Claims{}, fmt.Errorf("%w: revoked", domain.ErrInvalidToken)
		}
	}

	return domain.Claims{
		SubjectID:    claims.UserID,
		Role:         domain.Role(claims.Role),
		CredentialID: claims.ID,
		IssuedAt:     claims.IssuedAt.Time,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// Revoke denylists the token's jti until the token would have expired.
func (i *JWTIssuer) Revoke(ctx context.Context, raw string) error {
	claims, err := i.parse(raw)
	if err != nil {
		return err
	}
	if i.denylist == nil {
		return nil
	}
	return i.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time.Sub(i.now()))
}

func (i *JWTIssuer) parse(raw string) (*AccessTokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", domain.ErrInvalidToken)
	}

	claims := &AccessTokenClaims{}
	keyFunc := func(*jwt.Token) (interface{}, error) { return i.secret, nil }
	parsed, err := jwt.ParseWithClaims(raw, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", domain.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	if parsed == nil || !parsed.Valid || strings.TrimSpace(claims.UserID) == "" || claims.ID == "" {
		return nil, domain.ErrInvalidToken
	}

	return claims, nil
}

var _ port.CredentialIssuer = (*JWTIssuer)(nil)
