package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/repository"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func userRow(now time.Time, active bool, code *string) *pgxmock.Rows {
	return pgxmock.NewRows(userColumns).AddRow(
		"user-1",
		"Jane Doe",
		"jane",
		"jane@x.io",
		"argon2id$hash",
		"user",
		"user.jpg",
		active,
		code,
		now,
		now,
	)
}

func TestUserRepository_Create(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	now := time.Now().UTC()
	code := "code-1"
	user := domain.User{
		ID:             "user-1",
		FullName:       "Jane Doe",
		UserName:       "jane",
		Email:          "jane@x.io",
		PasswordHash:   "argon2id$hash",
		Role:           domain.RoleUser,
		ProfilePicture: domain.DefaultProfilePicture,
		ActivationCode: &code,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectExec(`INSERT INTO acara\.users`).
		WithArgs("user-1", "Jane Doe", "jane", "jane@x.io", "argon2id$hash", "user", "user.jpg", false, &code, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_Create_DuplicateMapsToErrDuplicate(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec(`INSERT INTO acara\.users`).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_email_key"})

	err := repo.Create(context.Background(), domain.User{ID: "user-1", Role: domain.RoleUser})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUserRepository_FindActiveByIdentifier(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM acara\.users WHERE \(\(email = \$1 OR user_name = \$2\) AND is_active = \$3\) LIMIT 1`).
		WithArgs("jane", "jane", true).
		WillReturnRows(userRow(now, true, (*string)(nil)))

	user, err := repo.FindActiveByIdentifier(context.Background(), "jane")
	if err != nil {
		t.Fatalf("FindActiveByIdentifier returned error: %v", err)
	}
	if user.UserName != "jane" || !user.IsActive || user.Role != domain.RoleUser {
		t.Fatalf("unexpected user: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM acara\.users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_GetByID_MalformedIDIsNotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM acara\.users WHERE id = \$1`).
		WithArgs("not-a-uuid").
		WillReturnError(&pgconn.PgError{Code: invalidTextRepresentation, Message: `invalid input syntax for type uuid: "not-a-uuid"`})

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if strings.Contains(err.Error(), "invalid input syntax") {
		t.Fatalf("driver detail leaked: %v", err)
	}
}

func TestUserRepository_ActivateByCode(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)
	now := time.Now().UTC()
	repo.now = func() time.Time { return now }

	mock.ExpectQuery(`UPDATE acara\.users SET is_active = \$1, activation_code = \$2, updated_at = \$3 WHERE activation_code = \$4 AND is_active = false RETURNING id`).
		WithArgs(true, nil, now, "code-1").
		WillReturnRows(userRow(now, true, (*string)(nil)))

	user, err := repo.ActivateByCode(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("ActivateByCode returned error: %v", err)
	}
	if !user.IsActive || user.ActivationCode != nil {
		t.Fatalf("expected active user without code, got %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_ActivateByCode_NoPendingUser(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`UPDATE acara\.users`).
		WithArgs(true, nil, pgxmock.AnyArg(), "used-code").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.ActivateByCode(context.Background(), "used-code"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_ReplaceActivationCode_AlreadyActive(t *testing.T) {
	mock := newMockPool(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec(`UPDATE acara\.users SET activation_code = \$1, updated_at = \$2 WHERE id = \$3 AND is_active = false`).
		WithArgs("new-code", pgxmock.AnyArg(), "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.ReplaceActivationCode(context.Background(), "user-1", "new-code")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
