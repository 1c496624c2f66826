package port

import (
	"context"

	"github.com/acara/acara-auth/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	// Create inserts a new user; duplicates on user name or email return repository.ErrDuplicate.
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// FindActiveByIdentifier matches identifier against email or user name among active users.
	FindActiveByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// ActivateByCode atomically flips a pending user holding code to active and clears the code.
	ActivateByCode(ctx context.Context, code string) (*domain.User, error)
	// ReplaceActivationCode swaps the code of a still pending user.
	ReplaceActivationCode(ctx context.Context, id, code string) error
}
