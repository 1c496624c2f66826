package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when kafka.enabled is false.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Debug("Stub event published", append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
	}, fields...)...)
}

// PublishUserRegistered logs user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(EventUserRegistered, event.UserID, event.RegisteredAt,
		zap.String("user_name", event.UserName),
		zap.String("email", logger.MaskEmail(event.Email)),
	)
	return nil
}

// PublishUserActivated logs user.activated events.
func (p *StubPublisher) PublishUserActivated(_ context.Context, event domain.UserActivatedEvent) error {
	p.logEvent(EventUserActivated, event.UserID, event.ActivatedAt)
	return nil
}

// PublishUserLoggedIn logs user.logged_in events.
func (p *StubPublisher) PublishUserLoggedIn(_ context.Context, event domain.UserLoggedInEvent) error {
	p.logEvent(EventUserLoggedIn, event.UserID, event.LoggedInAt,
		zap.String("credential_kind", string(event.CredentialKind)),
		zap.String("ip", logger.MaskIP(event.IP)),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
