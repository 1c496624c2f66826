package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/infra/telemetry"
	"github.com/acara/acara-auth/internal/usecase"
)

// RegistrationService opens and activates accounts.
type RegistrationService interface {
	Register(ctx context.Context, in usecase.RegisterInput) (domain.User, error)
	Activate(ctx context.Context, code string) (domain.User, error)
	ResendActivation(ctx context.Context, email string) error
}

// Register godoc
// @Summary Register a new user account
// @Description Creates a pending account and sends the activation email.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request payload"
// @Success 200 {object} Envelope{data=UserResponse}
// @Failure 400 {object} Envelope "Validation failed or user already registered"
// @Failure 429 {object} Envelope "Rate limit exceeded"
// @Failure 500 {object} Envelope
// @Router /api/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration service unavailable"))
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.Record("register", telemetry.OutcomeRejected)
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, bindingMessage(err)))
		return
	}

	user, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		FullName:        req.FullName,
		UserName:        req.UserName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.fail(c, "register", err, domainErrorCases)
		return
	}

	h.metrics.Record("register", telemetry.OutcomeSuccess)
	respondSuccess(c, "Success Registration", newUserResponse(user))
}

// Activate godoc
// @Summary Activate an account
// @Description Consumes the activation code from the email link. A code works once.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body ActivationRequest true "Activation code"
// @Success 200 {object} Envelope{data=UserResponse}
// @Failure 400 {object} Envelope "Code missing, unknown or already used"
// @Failure 500 {object} Envelope
// @Router /api/auth/activation [post]
func (h *AuthHandler) activate(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration service unavailable"))
		return
	}

	var req ActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.Record("activate", telemetry.OutcomeRejected)
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, bindingMessage(err)))
		return
	}

	user, err := h.registration.Activate(c.Request.Context(), req.Code)
	if err != nil {
		h.fail(c, "activate", err, domainErrorCases)
		return
	}

	h.metrics.Record("activate", telemetry.OutcomeSuccess)
	respondSuccess(c, "Success Activation", newUserResponse(user))
}

// ResendActivation godoc
// @Summary Resend the activation email
// @Description Always succeeds for well-formed addresses so accounts cannot be probed.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body ResendActivationRequest true "Account email"
// @Success 200 {object} Envelope
// @Failure 400 {object} Envelope
// @Failure 429 {object} Envelope "Rate limit exceeded"
// @Router /api/auth/activation/resend [post]
func (h *AuthHandler) resendActivation(c *gin.Context) {
	if h.registration == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "registration service unavailable"))
		return
	}

	var req ResendActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.Record("resend_activation", telemetry.OutcomeRejected)
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, bindingMessage(err)))
		return
	}

	if err := h.registration.ResendActivation(c.Request.Context(), req.Email); err != nil {
		h.fail(c, "resend_activation", err, domainErrorCases)
		return
	}

	h.metrics.Record("resend_activation", telemetry.OutcomeSuccess)
	respondSuccess(c, "If the account is pending, a new activation email is on its way", nil)
}
