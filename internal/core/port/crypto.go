package port

import (
	"context"

	"github.com/acara/acara-auth/internal/core/domain"
)

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string, userInputs ...string) error
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// CredentialIssuer mints and checks the credentials handed out on login.
type CredentialIssuer interface {
	Kind() domain.CredentialKind
	Issue(ctx context.Context, claims domain.Claims, meta domain.IssueMetadata) (domain.Credential, error)
	// Verify reports every failure as domain.ErrInvalidToken.
	Verify(ctx context.Context, raw string) (domain.Claims, error)
	Revoke(ctx context.Context, raw string) error
}
