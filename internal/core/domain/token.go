package domain

import "time"

// CredentialKind names the strategy that minted a credential.
type CredentialKind string

const (
	CredentialJWT     CredentialKind = "jwt"
	CredentialSession CredentialKind = "session"
)

// Claims is the identity recovered from a verified credential.
type Claims struct {
	SubjectID    string
	Role         Role
	CredentialID string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// Credential is the opaque artifact handed to a client after a successful login.
type Credential struct {
	Kind      CredentialKind
	Token     string
	ID        string
	ExpiresAt time.Time
}

// IssueMetadata carries request context recorded alongside issued credentials.
type IssueMetadata struct {
	IP        string
	UserAgent string
}
