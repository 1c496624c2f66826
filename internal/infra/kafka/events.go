package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/infra/config"
)

const schemaVersion = "1.0"

const (
	EventUserRegistered = "user.registered"
	EventUserActivated  = "user.activated"
	EventUserLoggedIn   = "user.logged_in"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	bytes, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	// keyed by user so one account's events stay ordered within a partition
	return p.producer.Send(ctx, &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(bytes),
	})
}

// PublishUserRegistered publishes user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		UserName     string    `json:"user_name"`
		Email        string    `json:"email"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		UserID:       event.UserID,
		UserName:     event.UserName,
		Email:        event.Email,
		RegisteredAt: event.RegisteredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

// PublishUserActivated publishes user.activated events.
func (p *EventPublisher) PublishUserActivated(ctx context.Context, event domain.UserActivatedEvent) error {
	payload := struct {
		UserID      string    `json:"user_id"`
		ActivatedAt time.Time `json:"activated_at"`
	}{
		UserID:      event.UserID,
		ActivatedAt: event.ActivatedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventUserActivated, event.UserID, event.ActivatedAt, payload)
}

// PublishUserLoggedIn publishes user.logged_in events.
func (p *EventPublisher) PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error {
	payload := struct {
		UserID         string    `json:"user_id"`
		CredentialKind string    `json:"credential_kind"`
		IPAddress      string    `json:"ip_address,omitempty"`
		LoggedInAt     time.Time `json:"logged_in_at"`
	}{
		UserID:         event.UserID,
		CredentialKind: string(event.CredentialKind),
		IPAddress:      event.IP,
		LoggedInAt:     event.LoggedInAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventUserLoggedIn, event.UserID, event.LoggedInAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
