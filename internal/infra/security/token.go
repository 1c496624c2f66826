package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// Sizes of the random material behind bearer secrets.
const (
	ActivationCodeBytes = 32
	SessionTokenBytes   = 32
)

// NewActivationCode returns the one-time code mailed to a pending account.
func NewActivationCode() (string, error) {
	return randomToken(ActivationCodeBytes)
}

// NewSessionToken returns an opaque session credential.
func NewSessionToken() (string, error) {
	return randomToken(SessionTokenBytes)
}

// TokenDigest is what gets stored in place of a bearer secret.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("token size must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
