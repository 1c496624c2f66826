package usecase

import "github.com/acara/acara-auth/internal/core/domain"

// kindError carries a client-facing message and unwraps to a domain error kind.
type kindError struct {
	kind    error
	message string
}

func (e *kindError) Error() string { return e.message }

func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, message string) error {
	return &kindError{kind: kind, message: message}
}

var (
	// ErrUserConflict indicates the user name or email is already taken.
	ErrUserConflict = newKindError(domain.ErrConflict, "user name or email already registered")
	// ErrPasswordMismatch indicates password and confirmation differ.
	ErrPasswordMismatch = newKindError(domain.ErrValidation, "password confirmation does not match")
	// ErrUserNotFound indicates no active account matches the login identifier.
	ErrUserNotFound = newKindError(domain.ErrAuthentication, "user not found")
	// ErrInvalidCredentials indicates the password does not match the account.
	ErrInvalidCredentials = newKindError(domain.ErrAuthentication, "invalid credentials")
	// ErrActivationCodeInvalid indicates the code is unknown or already consumed.
	ErrActivationCodeInvalid = newKindError(domain.ErrNotFound, "activation code not found")
	// ErrAccountNotFound indicates a lookup by id matched nothing.
	ErrAccountNotFound = newKindError(domain.ErrNotFound, "user not found")
	// ErrSubjectGone indicates a valid credential refers to a user that no longer exists.
	ErrSubjectGone = newKindError(domain.ErrInvalidToken, "invalid token")
)

// validationError wraps a field-level problem as a validation kind.
func validationError(message string) error {
	return newKindError(domain.ErrValidation, message)
}
