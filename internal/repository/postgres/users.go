package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
)

const usersTable = "acara.users"

var userColumns = []string{
	"id",
	"full_name",
	"user_name",
	"email",
	"password_hash",
	"role",
	"profile_picture",
	"is_active",
	"activation_code",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder, now: r.now}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.FullName,
			user.UserName,
			user.Email,
			user.PasswordHash,
			string(user.Role),
			user.ProfilePicture,
			user.IsActive,
			user.ActivationCode,
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return translateError("insert user", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.selectOne(ctx, "select user by id", squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by email regardless of activation state.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.selectOne(ctx, "select user by email", squirrel.Eq{"email": email})
}

// FindActiveByIdentifier retrieves an active user whose email or user name equals identifier.
func (r *UserRepository) FindActiveByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return r.selectOne(ctx, "select user by identifier", squirrel.And{
		squirrel.Or{
			squirrel.Eq{"email": identifier},
			squirrel.Eq{"user_name": identifier},
		},
		squirrel.Eq{"is_active": true},
	})
}

// ActivateByCode flips the pending user holding code to active in a single statement.
func (r *UserRepository) ActivateByCode(ctx context.Context, code string) (*domain.User, error) {
	stmt, args, err := r.builder.Update(usersTable).
		Set("is_active", true).
		Set("activation_code", nil).
		Set("updated_at", r.now()).
		Where("activation_code = ? AND is_active = false", code).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build activate user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translateError("activate user", err)
	}
	return user, nil
}

// ReplaceActivationCode rotates the activation code of a pending user.
func (r *UserRepository) ReplaceActivationCode(ctx context.Context, id, code string) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("activation_code", code).
		Set("updated_at", r.now()).
		Where("id = ? AND is_active = false", id).
		ToSql()
	if err != nil {
		return fmt.Errorf("build replace activation code sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return translateError("replace activation code", err)
	}
	if tag.RowsAffected() == 0 {
		return translateError("replace activation code", pgx.ErrNoRows)
	}
	return nil
}

func (r *UserRepository) selectOne(ctx context.Context, op string, where squirrel.Sqlizer) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s sql: %w", op, err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translateError(op, err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	if err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.UserName,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.ProfilePicture,
		&user.IsActive,
		&user.ActivationCode,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
