package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
)

const sessionsTable = "acara.sessions"

var sessionColumns = []string{
	"id",
	"user_id",
	"role",
	"token_hash",
	"ip",
	"user_agent",
	"created_at",
	"updated_at",
	"expires_at",
}

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{exec: tx, builder: r.builder}
}

// Create persists a new session.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.UserID,
			string(session.Role),
			session.TokenHash,
			session.IP,
			session.UserAgent,
			session.CreatedAt,
			session.UpdatedAt,
			session.ExpiresAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return translateError("insert session", err)
	}
	return nil
}

// GetByTokenHash loads the session whose token hashes to tokenHash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From(sessionsTable).
		Where(squirrel.Eq{"token_hash": tokenHash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	var (
		session domain.Session
		role    string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&session.ID,
		&session.UserID,
		&role,
		&session.TokenHash,
		&session.IP,
		&session.UserAgent,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.ExpiresAt,
	); err != nil {
		return nil, translateError("select session", err)
	}
	session.Role = domain.Role(role)

	return &session, nil
}

// Extend records a rolling refresh.
func (r *SessionRepository) Extend(ctx context.Context, id string, updatedAt, expiresAt time.Time) error {
	stmt, args, err := r.builder.Update(sessionsTable).
		Set("updated_at", updatedAt).
		Set("expires_at", expiresAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build extend session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return translateError("extend session", err)
	}
	if tag.RowsAffected() == 0 {
		return translateError("extend session", pgx.ErrNoRows)
	}
	return nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(sessionsTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete session sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return translateError("delete session", err)
	}
	return nil
}

// DeleteExpired purges sessions that expired before the supplied moment.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete(sessionsTable).Where(squirrel.Lt{"expires_at": before}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired sessions sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, translateError("delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
