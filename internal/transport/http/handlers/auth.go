package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/infra/telemetry"
	"github.com/acara/acara-auth/internal/transport/http/middleware"
	"github.com/acara/acara-auth/internal/usecase"
)

// AuthService is the login side of the account lifecycle.
type AuthService interface {
	Login(ctx context.Context, in usecase.LoginInput) (usecase.LoginResult, error)
	Authenticate(ctx context.Context, raw string) (domain.Claims, error)
	Profile(ctx context.Context, claims domain.Claims) (domain.User, error)
	Logout(ctx context.Context, raw string) error
}

// OutcomeRecorder counts operation outcomes.
type OutcomeRecorder interface {
	Record(operation, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) Record(string, string) {}

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth         AuthService
	registration RegistrationService
	metrics      OutcomeRecorder
	isDev        bool
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithRegistrationService injects the registration service dependency.
func WithRegistrationService(registration RegistrationService) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.registration = registration
	}
}

// WithOutcomeRecorder injects the counter used for operation outcomes.
func WithOutcomeRecorder(metrics OutcomeRecorder) AuthHandlerOption {
	return func(h *AuthHandler) {
		if metrics != nil {
			h.metrics = metrics
		}
	}
}

// WithDevMode exposes internal error text in 500 responses.
func WithDevMode(isDev bool) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.isDev = isDev
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth AuthService, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{
		auth:    auth,
		metrics: noopRecorder{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// AuthRouteLimits groups the per-route limiters applied ahead of handlers.
type AuthRouteLimits struct {
	// Credential guards login and register.
	Credential []gin.HandlerFunc
	// EmailVerification guards activation resend.
	EmailVerification []gin.HandlerFunc
}

// RegisterRoutes binds authentication routes under r.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, limits AuthRouteLimits) {
	r.POST("/register", chain(limits.Credential, h.register)...)
	r.POST("/login", chain(limits.Credential, h.login)...)
	r.POST("/activation", h.activate)
	r.POST("/activation/resend", chain(limits.EmailVerification, h.resendActivation)...)

	authed := []gin.HandlerFunc{middleware.RequireAuth(h.auth), middleware.RequireActiveUser(h.auth)}
	r.GET("/me", chain(authed, h.me)...)
	r.POST("/logout", chain(authed, h.logout)...)
}

func chain(pre []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(pre)+1)
	out = append(out, pre...)
	return append(out, handler)
}

// Login godoc
// @Summary Authenticate a user with credentials
// @Description Matches the identifier against email or user name among active accounts and issues a credential.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} Envelope{data=LoginResponse}
// @Failure 400 {object} Envelope "Invalid request payload"
// @Failure 403 {object} Envelope "User not found or invalid credentials"
// @Failure 429 {object} Envelope "Rate limit exceeded"
// @Failure 500 {object} Envelope
// @Router /api/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.Record("login", telemetry.OutcomeRejected)
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, bindingMessage(err)))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Identifier: strings.TrimSpace(req.Identifier),
		Password:   req.Password,
		IP:         strings.TrimSpace(c.ClientIP()),
		UserAgent:  strings.TrimSpace(c.Request.UserAgent()),
	})
	if err != nil {
		h.fail(c, "login", err, domainErrorCases)
		return
	}

	h.metrics.Record("login", telemetry.OutcomeSuccess)
	respondSuccess(c, "Success Login", LoginResponse{
		Token:     result.Credential.Token,
		TokenType: "Bearer",
		ExpiresAt: result.Credential.ExpiresAt,
		User:      newUserResponse(result.User),
	})
}

// Me godoc
// @Summary Current account
// @Description Returns the account behind the bearer credential.
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Envelope{data=UserResponse}
// @Failure 401 {object} Envelope
// @Failure 403 {object} Envelope "Account not activated"
// @Router /api/auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "Unauthorized"))
		return
	}
	h.metrics.Record("me", telemetry.OutcomeSuccess)
	respondSuccess(c, "Success get user profile", newUserResponse(user))
}

// Logout godoc
// @Summary Revoke the current credential
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Envelope
// @Failure 401 {object} Envelope
// @Router /api/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "Unauthorized"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), principal.Credential); err != nil {
		h.fail(c, "logout", err, domainErrorCases)
		return
	}

	h.metrics.Record("logout", telemetry.OutcomeSuccess)
	respondSuccess(c, "Success Logout", nil)
}

// fail answers err through cases and counts the outcome under operation.
func (h *AuthHandler) fail(c *gin.Context, operation string, err error, cases []ErrorCase) {
	if RespondWithMappedError(c, err, cases, h.isDev) {
		h.metrics.Record(operation, telemetry.OutcomeRejected)
		return
	}
	h.metrics.Record(operation, telemetry.OutcomeError)
}
