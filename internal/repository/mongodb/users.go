package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/repository"
)

type userDocument struct {
	ID             string    `bson:"_id"`
	FullName       string    `bson:"fullName"`
	UserName       string    `bson:"userName"`
	Email          string    `bson:"email"`
	Password       string    `bson:"password"`
	Role           string    `bson:"role"`
	ProfilePicture string    `bson:"profilePicture"`
	IsActive       bool      `bson:"isActive"`
	ActiveCode     *string   `bson:"activeCode"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func toUserDocument(u domain.User) userDocument {
	return userDocument{
		ID:             u.ID,
		FullName:       u.FullName,
		UserName:       u.UserName,
		Email:          u.Email,
		Password:       u.PasswordHash,
		Role:           string(u.Role),
		ProfilePicture: u.ProfilePicture,
		IsActive:       u.IsActive,
		ActiveCode:     u.ActivationCode,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (d userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:             d.ID,
		FullName:       d.FullName,
		UserName:       d.UserName,
		Email:          d.Email,
		PasswordHash:   d.Password,
		Role:           domain.Role(d.Role),
		ProfilePicture: d.ProfilePicture,
		IsActive:       d.IsActive,
		ActivationCode: d.ActiveCode,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// identifierFilter matches an active user by email or user name.
func identifierFilter(identifier string) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"email": identifier},
			bson.M{"userName": identifier},
		},
		"isActive": true,
	}
}

// pendingCodeFilter matches the still pending user that owns code.
func pendingCodeFilter(code string) bson.M {
	return bson.M{"activeCode": code, "isActive": false}
}

// UserRepository implements port.UserRepository on a MongoDB collection.
type UserRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewUserRepository wires a collection-backed user repository.
func NewUserRepository(coll *mongo.Collection) *UserRepository {
	return &UserRepository{
		coll: coll,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new user document.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	if _, err := r.coll.InsertOne(ctx, toUserDocument(user)); err != nil {
		return translateError("insert user", err)
	}
	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "find user by id", bson.M{"_id": id})
}

// GetByEmail retrieves a user by email regardless of activation state.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "find user by email", bson.M{"email": email})
}

// FindActiveByIdentifier retrieves an active user by email or user name.
func (r *UserRepository) FindActiveByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return r.findOne(ctx, "find user by identifier", identifierFilter(identifier))
}

// ActivateByCode flips the pending holder of code to active with a single find-and-modify.
func (r *UserRepository) ActivateByCode(ctx context.Context, code string) (*domain.User, error) {
	update := bson.M{
		"$set":   bson.M{"isActive": true, "updatedAt": r.now()},
		"$unset": bson.M{"activeCode": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDocument
	if err := r.coll.FindOneAndUpdate(ctx, pendingCodeFilter(code), update, opts).Decode(&doc); err != nil {
		return nil, translateError("activate user", err)
	}
	return doc.toDomain(), nil
}

// ReplaceActivationCode rotates the activation code of a pending user.
func (r *UserRepository) ReplaceActivationCode(ctx context.Context, id, code string) error {
	filter := bson.M{"_id": id, "isActive": false}
	update := bson.M{"$set": bson.M{"activeCode": code, "updatedAt": r.now()}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return translateError("replace activation code", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) findOne(ctx context.Context, op string, filter bson.M) (*domain.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translateError(op, err)
	}
	return doc.toDomain(), nil
}

var _ port.UserRepository = (*UserRepository)(nil)
