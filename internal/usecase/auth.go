package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/repository"
)

// LoginInput identifies the account by email or user name.
type LoginInput struct {
	Identifier string
	Password   string
	IP         string
	UserAgent  string
}

// LoginResult pairs the issued credential with the sanitized account.
type LoginResult struct {
	Credential domain.Credential
	User       domain.User
}

// AuthService coordinates login, credential checks and profile lookups.
type AuthService struct {
	users  port.UserRepository
	hasher port.PasswordHasher
	issuer port.CredentialIssuer
	events port.EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users port.UserRepository,
	hasher port.PasswordHasher,
	issuer port.CredentialIssuer,
	events port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		users:  users,
		hasher: hasher,
		issuer: issuer,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Login resolves an active account by identifier, checks the password and
// issues a credential. Pending accounts are indistinguishable from unknown ones.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		return LoginResult{}, validationError("identifier is required")
	}
	if in.Password == "" {
		return LoginResult{}, validationError("password is required")
	}

	user, err := s.users.FindActiveByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LoginResult{}, ErrUserNotFound
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	// the lookup filters on activation already; kept as a guard for stores that don't
	if !user.IsActive {
		return LoginResult{}, ErrUserNotFound
	}

	cred, err := s.issuer.Issue(ctx,
		domain.Claims{SubjectID: user.ID, Role: user.Role},
		domain.IssueMetadata{IP: in.IP, UserAgent: in.UserAgent},
	)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue credential: %w", err)
	}

	if s.events != nil {
		event := domain.UserLoggedInEvent{
			EventID:        uuid.NewString(),
			UserID:         user.ID,
			CredentialKind: cred.Kind,
			IP:             in.IP,
			LoggedInAt:     s.now(),
		}
		if err := s.events.PublishUserLoggedIn(ctx, event); err != nil {
			s.log.Warn("publish user.logged_in failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return LoginResult{Credential: cred, User: user.Sanitized()}, nil
}

// Authenticate verifies a presented credential and returns its claims.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (domain.Claims, error) {
	return s.issuer.Verify(ctx, raw)
}

// Profile returns the account behind verified claims.
func (s *AuthService) Profile(ctx context.Context, claims domain.Claims) (domain.User, error) {
	user, err := s.users.GetByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrSubjectGone
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user.Sanitized(), nil
}

// GetUser returns any account by id; callers enforce authorization.
func (s *AuthService) GetUser(ctx context.Context, id string) (domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, validationError("id is required")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrAccountNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user.Sanitized(), nil
}

// Logout revokes the presented credential.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	if err := s.issuer.Revoke(ctx, raw); err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			return err
		}
		return fmt.Errorf("revoke credential: %w", err)
	}
	return nil
}

// CredentialKind reports which strategy the service issues.
func (s *AuthService) CredentialKind() domain.CredentialKind {
	return s.issuer.Kind()
}
