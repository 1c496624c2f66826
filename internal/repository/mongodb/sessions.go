package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/repository"
)

type sessionDocument struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Role      string    `bson:"role"`
	TokenHash string    `bson:"tokenHash"`
	IP        *string   `bson:"ipAddress,omitempty"`
	UserAgent *string   `bson:"userAgent,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

func (d sessionDocument) toDomain() *domain.Session {
	return &domain.Session{
		ID:        d.ID,
		UserID:    d.UserID,
		Role:      domain.Role(d.Role),
		TokenHash: d.TokenHash,
		IP:        d.IP,
		UserAgent: d.UserAgent,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		ExpiresAt: d.ExpiresAt,
	}
}

// SessionRepository implements port.SessionRepository on a MongoDB collection.
type SessionRepository struct {
	coll *mongo.Collection
}

// NewSessionRepository wires a collection-backed session repository.
func NewSessionRepository(coll *mongo.Collection) *SessionRepository {
	return &SessionRepository{coll: coll}
}

// Create persists a new session.
func (r *SessionRepository) Create(ctx context.Context, s domain.Session) error {
	doc := sessionDocument{
		ID:        s.ID,
		UserID:    s.UserID,
		Role:      string(s.Role),
		TokenHash: s.TokenHash,
		IP:        s.IP,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		ExpiresAt: s.ExpiresAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return translateError("insert session", err)
	}
	return nil
}

// GetByTokenHash loads a session by token digest.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var doc sessionDocument
	if err := r.coll.FindOne(ctx, bson.M{"tokenHash": tokenHash}).Decode(&doc); err != nil {
		return nil, translateError("find session", err)
	}
	return doc.toDomain(), nil
}

// Extend records a rolling refresh.
func (r *SessionRepository) Extend(ctx context.Context, id string, updatedAt, expiresAt time.Time) error {
	update := bson.M{"$set": bson.M{"updatedAt": updatedAt, "expiresAt": expiresAt}}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return translateError("extend session", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return translateError("delete session", err)
	}
	return nil
}

// DeleteExpired purges sessions that expired before the supplied moment.
// The TTL index does this eventually; the sweep makes it deterministic.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": before}})
	if err != nil {
		return 0, translateError("delete expired sessions", err)
	}
	return res.DeletedCount, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
