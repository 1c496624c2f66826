package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/acara/acara-auth/internal/repository"
)

const (
	usersCollection    = "users"
	sessionsCollection = "sessions"
)

// Repositories groups the document-store implementations.
type Repositories struct {
	Users    *UserRepository
	Sessions *SessionRepository
}

// NewRepositories binds repositories to collections of db.
func NewRepositories(db *mongo.Database) *Repositories {
	return &Repositories{
		Users:    NewUserRepository(db.Collection(usersCollection)),
		Sessions: NewSessionRepository(db.Collection(sessionsCollection)),
	}
}

// userIndexes enforce uniqueness of login names and of pending activation
// codes; consumed codes are unset and drop out of the partial index.
func userIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("users_email_unique")},
		{Keys: bson.D{{Key: "userName", Value: 1}}, Options: options.Index().SetUnique(true).SetName("users_user_name_unique")},
		{
			Keys: bson.D{{Key: "activeCode", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("users_active_code_unique").
				SetPartialFilterExpression(bson.M{"activeCode": bson.M{"$type": "string"}}),
		},
	}
}

// EnsureIndexes creates the unique and TTL indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	users := userIndexes()
	if _, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, users); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	sessions := []mongo.IndexModel{
		{Keys: bson.D{{Key: "tokenHash", Value: 1}}, Options: options.Index().SetUnique(true).SetName("sessions_token_hash_unique")},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0).SetName("sessions_expiry_ttl")},
	}
	if _, err := db.Collection(sessionsCollection).Indexes().CreateMany(ctx, sessions); err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}
	return nil
}

func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
