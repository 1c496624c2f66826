package port

import (
	"context"

	"github.com/acara/acara-auth/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishUserActivated(ctx context.Context, event domain.UserActivatedEvent) error
	PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error
}

// ActivationNotifier hands activation links to the delivery pipeline.
type ActivationNotifier interface {
	NotifyActivation(ctx context.Context, notice domain.ActivationNotice) error
}
