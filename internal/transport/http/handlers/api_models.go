package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/transport/http/middleware"
)

// Envelope is the uniform body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates a failure envelope carrying the request trace ID.
func NewErrorResponse(c *gin.Context, message string) Envelope {
	return Envelope{
		Success: false,
		Message: message,
		TraceID: middleware.GetTraceID(c),
	}
}

func respondSuccess(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Message: message,
		Data:    data,
		TraceID: middleware.GetTraceID(c),
	})
}

// UserResponse is the public view of an account. The password digest and the
// activation code never leave the service.
type UserResponse struct {
	ID             string      `json:"id"`
	FullName       string      `json:"fullName"`
	UserName       string      `json:"userName"`
	Email          string      `json:"email"`
	Role           domain.Role `json:"role"`
	ProfilePicture string      `json:"profilePicture"`
	IsActive       bool        `json:"isActive"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

func newUserResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		FullName:       u.FullName,
		UserName:       u.UserName,
		Email:          u.Email,
		Role:           u.Role,
		ProfilePicture: u.ProfilePicture,
		IsActive:       u.IsActive,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	FullName        string `json:"fullName" binding:"required"`
	UserName        string `json:"userName" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
}

// LoginRequest identifies the account by email or user name.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LoginResponse carries the issued credential.
type LoginResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"tokenType"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

// ActivationRequest holds the code delivered by the activation email.
type ActivationRequest struct {
	Code string `json:"code" binding:"required"`
}

// ResendActivationRequest asks for a fresh activation email.
type ResendActivationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// HealthResponse describes liveness or readiness.
type HealthResponse struct {
	Status    string            `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	Checks    map[string]string `json:"checks,omitempty"`
}
