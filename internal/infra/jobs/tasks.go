package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/acara/acara-auth/internal/core/domain"
)

const (
	// TaskActivationEmail delivers the activation link of a freshly registered account.
	TaskActivationEmail = "mail:activation"
	// TaskSessionSweep deletes expired server-side sessions.
	TaskSessionSweep = "session:sweep"
)

// ActivationEmailPayload is the queued form of domain.ActivationNotice.
type ActivationEmailPayload struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	UserName  string    `json:"user_name"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Notice converts the payload back to the domain type.
func (p ActivationEmailPayload) Notice() domain.ActivationNotice {
	return domain.ActivationNotice{
		UserID:    p.UserID,
		FullName:  p.FullName,
		UserName:  p.UserName,
		Email:     p.Email,
		Code:      p.Code,
		CreatedAt: p.CreatedAt,
	}
}

// NewActivationEmailTask builds the task for notice.
func NewActivationEmailTask(notice domain.ActivationNotice) (*asynq.Task, error) {
	data, err := json.Marshal(ActivationEmailPayload{
		UserID:    notice.UserID,
		FullName:  notice.FullName,
		UserName:  notice.UserName,
		Email:     notice.Email,
		Code:      notice.Code,
		CreatedAt: notice.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal activation payload: %w", err)
	}
	return asynq.NewTask(TaskActivationEmail, data), nil
}

// NewSessionSweepTask builds the periodic sweep task.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSessionSweep, nil)
}
