package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/infra/logger"
	"github.com/acara/acara-auth/internal/infra/security"
	"github.com/acara/acara-auth/internal/repository"
)

// RegisterInput is the data a client submits to open an account.
type RegisterInput struct {
	FullName        string `validate:"required"`
	UserName        string `validate:"required"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"required"`
}

// RegistrationService handles account creation and activation.
type RegistrationService struct {
	users    port.UserRepository
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	notifier port.ActivationNotifier
	events   port.EventPublisher
	log      *zap.Logger
	validate *validator.Validate

	now     func() time.Time
	newID   func() string
	newCode func() (string, error)
}

// NewRegistrationService constructs a registration service. notifier and
// events are optional; without them the side effects are skipped.
func NewRegistrationService(
	users port.UserRepository,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	notifier port.ActivationNotifier,
	events port.EventPublisher,
	log *zap.Logger,
) *RegistrationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		users:    users,
		hasher:   hasher,
		policy:   policy,
		notifier: notifier,
		events:   events,
		log:      log,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		newCode:  security.NewActivationCode,
	}
}

// Register validates input, stores a pending user and dispatches the activation
// notice. Delivery and event failures are logged and never undo the account.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.UserName = strings.TrimSpace(in.UserName)
	in.Email = strings.TrimSpace(in.Email)

	if err := s.validate.Struct(in); err != nil {
		return domain.User{}, describeValidation(err)
	}
	if in.Password != in.ConfirmPassword {
		return domain.User{}, ErrPasswordMismatch
	}
	if s.policy != nil {
		if err := s.policy.Validate(in.Password, in.UserName, in.Email); err != nil {
			return domain.User{}, validationError(err.Error())
		}
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	code, err := s.newCode()
	if err != nil {
		return domain.User{}, fmt.Errorf("generate activation code: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:             s.newID(),
		FullName:       in.FullName,
		UserName:       in.UserName,
		Email:          in.Email,
		PasswordHash:   passwordHash,
		Role:           domain.RoleUser,
		ProfilePicture: domain.DefaultProfilePicture,
		IsActive:       false,
		ActivationCode: &code,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.User{}, ErrUserConflict
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	s.notify(ctx, user, code)

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:      s.newID(),
			UserID:       user.ID,
			UserName:     user.UserName,
			Email:        user.Email,
			RegisteredAt: now,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			s.log.Warn("publish user.registered failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return user.Sanitized(), nil
}

// Activate consumes code and moves its owner to the active state. Only one of
// several concurrent calls with the same code succeeds.
func (s *RegistrationService) Activate(ctx context.Context, code string) (domain.User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.User{}, validationError("activation code is required")
	}

	user, err := s.users.ActivateByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debug("activation code rejected", zap.String("code", logger.MaskSecret(code)))
			return domain.User{}, ErrActivationCodeInvalid
		}
		return domain.User{}, fmt.Errorf("activate user: %w", err)
	}

	if s.events != nil {
		event := domain.UserActivatedEvent{EventID: s.newID(), UserID: user.ID, ActivatedAt: user.UpdatedAt}
		if err := s.events.PublishUserActivated(ctx, event); err != nil {
			s.log.Warn("publish user.activated failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return user.Sanitized(), nil
}

// ResendActivation rotates the activation code of a pending account and sends it
// again. Unknown or already active addresses succeed silently so the endpoint
// cannot be used to probe for accounts.
func (s *RegistrationService) ResendActivation(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return validationError("email must be a valid address")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.IsActive {
		return nil
	}

	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("generate activation code: %w", err)
	}

	if err := s.users.ReplaceActivationCode(ctx, user.ID, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// activated in the meantime
			return nil
		}
		return fmt.Errorf("replace activation code: %w", err)
	}

	s.notify(ctx, *user, code)
	return nil
}

func (s *RegistrationService) notify(ctx context.Context, user domain.User, code string) {
	if s.notifier == nil {
		return
	}
	notice := domain.ActivationNotice{
		UserID:    user.ID,
		FullName:  user.FullName,
		UserName:  user.UserName,
		Email:     user.Email,
		Code:      code,
		CreatedAt: s.now(),
	}
	if err := s.notifier.NotifyActivation(ctx, notice); err != nil {
		s.log.Error("activation notice failed",
			zap.String("user_id", user.ID),
			zap.String("email", logger.MaskEmail(user.Email)),
			zap.Error(err),
		)
	}
}

// describeValidation turns the first failed rule into a client-facing message.
func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return validationError(err.Error())
	}

	fe := fieldErrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return validationError(field + " is required")
	case "email":
		return validationError(field + " must be a valid address")
	default:
		return validationError(fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
