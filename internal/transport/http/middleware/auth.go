package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	applogger "github.com/acara/acara-auth/internal/infra/logger"
)

const (
	principalKey   = "principal"
	currentUserKey = "current_user"
)

// Authenticator verifies a presented credential.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (domain.Claims, error)
}

// ProfileLoader resolves the account behind verified claims.
type ProfileLoader interface {
	Profile(ctx context.Context, claims domain.Claims) (domain.User, error)
}

// Principal is the authenticated caller attached to the gin context.
type Principal struct {
	UserID       string
	Role         domain.Role
	CredentialID string
	Credential   string
	ExpiresAt    time.Time
}

// RequireAuth validates the bearer credential and stores the Principal.
// Every verification failure yields the same 401 body.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			abortWithMessage(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidToken) {
				_ = c.Error(err)
				applogger.WithContext(c.Request.Context()).Error("credential verification failed", zap.Error(err))
				abortWithMessage(c, http.StatusInternalServerError, "internal server error")
				return
			}
			abortWithMessage(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		c.Set(principalKey, Principal{
			UserID:       claims.SubjectID,
			Role:         claims.Role,
			CredentialID: claims.CredentialID,
			Credential:   token,
			ExpiresAt:    claims.ExpiresAt,
		})
		GetRequestContext(c).UserID = claims.SubjectID

		c.Next()
	}
}

// BearerToken extracts the credential from "Authorization: Bearer <token>".
func BearerToken(c *gin.Context) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(c.GetHeader("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireRole rejects callers whose role is not among roles. Must run after RequireAuth.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			abortWithMessage(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}
		abortWithMessage(c, http.StatusForbidden, "Insufficient permissions")
	}
}

// RequireActiveUser loads the caller's account and rejects pending ones. The
// loaded account is available through GetCurrentUser.
func RequireActiveUser(profiles ProfileLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			abortWithMessage(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		user, err := profiles.Profile(c.Request.Context(), domain.Claims{
			SubjectID:    principal.UserID,
			Role:         principal.Role,
			CredentialID: principal.CredentialID,
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidToken) {
				abortWithMessage(c, http.StatusUnauthorized, "Unauthorized")
				return
			}
			_ = c.Error(err)
			applogger.WithContext(c.Request.Context()).Error("profile lookup failed",
				zap.String("user_id", principal.UserID),
				zap.Error(err),
			)
			abortWithMessage(c, http.StatusInternalServerError, "internal server error")
			return
		}

		if !user.IsActive {
			abortWithMessage(c, http.StatusForbidden, "Account not activated. Please verify your email.")
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// GetPrincipal returns the authenticated caller.
func GetPrincipal(c *gin.Context) (Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}

// GetCurrentUser returns the account loaded by RequireActiveUser.
func GetCurrentUser(c *gin.Context) (domain.User, bool) {
	value, exists := c.Get(currentUserKey)
	if !exists {
		return domain.User{}, false
	}
	user, ok := value.(domain.User)
	return user, ok
}
