package domain

import "errors"

// Error kinds. Concrete errors wrap exactly one of these so transports can map them.
var (
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("conflict")
	ErrAuthentication = errors.New("authentication failed")
	ErrNotFound       = errors.New("not found")
	ErrInvalidToken   = errors.New("invalid token")
)
