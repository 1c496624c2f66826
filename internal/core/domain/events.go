package domain

import "time"

// UserRegisteredEvent represents the payload for user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	UserName     string
	Email        string
	RegisteredAt time.Time
}

// UserActivatedEvent represents the payload for user.activated messages.
type UserActivatedEvent struct {
	EventID     string
	UserID      string
	ActivatedAt time.Time
}

// UserLoggedInEvent represents the payload for user.logged_in messages.
type UserLoggedInEvent struct {
	EventID        string
	UserID         string
	CredentialKind CredentialKind
	IP             string
	LoggedInAt     time.Time
}

// ActivationNotice carries what the mailer needs to deliver an activation link.
type ActivationNotice struct {
	UserID    string
	FullName  string
	UserName  string
	Email     string
	Code      string
	CreatedAt time.Time
}
