package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/infra/telemetry"
	"github.com/acara/acara-auth/internal/usecase"
)

// UserDirectory looks up arbitrary accounts.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// UserHandler exposes administrative account lookups.
type UserHandler struct {
	users   UserDirectory
	metrics OutcomeRecorder
	isDev   bool
}

// NewUserHandler constructs a new handler instance. metrics may be nil.
func NewUserHandler(users UserDirectory, metrics OutcomeRecorder, isDev bool) *UserHandler {
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &UserHandler{users: users, metrics: metrics, isDev: isDev}
}

var userLookupCases = append([]ErrorCase{
	{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound},
}, domainErrorCases...)

// GetUser godoc
// @Summary Look up an account
// @Description Admin only. Returns the account with the given id.
// @Tags Users
// @Security BearerAuth
// @Produce json
// @Param id path string true "User identifier"
// @Success 200 {object} Envelope{data=UserResponse}
// @Failure 401 {object} Envelope
// @Failure 403 {object} Envelope "Insufficient permissions"
// @Failure 404 {object} Envelope
// @Router /api/users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "id is required"))
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		if RespondWithMappedError(c, err, userLookupCases, h.isDev) {
			h.metrics.Record("get_user", telemetry.OutcomeRejected)
		} else {
			h.metrics.Record("get_user", telemetry.OutcomeError)
		}
		return
	}

	h.metrics.Record("get_user", telemetry.OutcomeSuccess)
	respondSuccess(c, "Success get user", newUserResponse(user))
}
