package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	applogger "github.com/acara/acara-auth/internal/infra/logger"
)

const internalErrorMessage = "internal server error"

// ErrorCase maps a sentinel error to an HTTP status code and response message.
// An empty Message echoes the error text, which usecase errors keep client safe.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// domainErrorCases maps the error kinds every usecase error wraps.
var domainErrorCases = []ErrorCase{
	{Err: domain.ErrValidation, Status: http.StatusBadRequest},
	{Err: domain.ErrConflict, Status: http.StatusBadRequest},
	{Err: domain.ErrAuthentication, Status: http.StatusForbidden},
	{Err: domain.ErrNotFound, Status: http.StatusBadRequest},
	{Err: domain.ErrInvalidToken, Status: http.StatusUnauthorized},
}

// RespondWithMappedError resolves err against cases and reports whether it
// matched. Unmatched errors are logged and answered with a 500 whose message
// carries the error text only when exposeInternal is set.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, exposeInternal bool) bool {
	if err == nil {
		c.Status(http.StatusOK)
		return true
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			message := cs.Message
			if message == "" {
				message = err.Error()
			}
			c.JSON(cs.Status, NewErrorResponse(c, message))
			return true
		}
	}

	_ = c.Error(err)
	applogger.WithContext(c.Request.Context()).Error("request failed",
		zap.String("route", c.FullPath()),
		zap.Error(err),
	)

	message := internalErrorMessage
	if exposeInternal {
		message = err.Error()
	}
	c.JSON(http.StatusInternalServerError, NewErrorResponse(c, message))
	return false
}
