package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/adminvault/internal/common"
	"github.com/dmitrijs2005/adminvault/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

const (
	insertQ  = `(?s)^\s*INSERT\s+INTO\s+accounts\s*\(id,\s*email,\s*password_hash\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*RETURNING\s+created_at\s*$`
	byEmailQ = `(?s)^\s*SELECT\s+id,\s*email,\s*password_hash,\s*created_at\s+FROM\s+accounts\s+WHERE\s+lower\(email\)\s*=\s*lower\(\$1\)\s*$`
	byIDQ    = `(?s)^\s*SELECT\s+id,\s*email,\s*password_hash,\s*created_at\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1\s*$`
)

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(insertQ).
		WithArgs("id-1", "alice@corp.io", "$argon2id$...").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	got, err := repo.Create(context.Background(), &models.Account{ID: "id-1", Email: "alice@corp.io", PasswordHash: "$argon2id$..."})
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQ).
		WithArgs("id-1", "alice@corp.io", "h").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.Account{ID: "id-1", Email: "alice@corp.io", PasswordHash: "h"})
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQ).
		WithArgs("id-1", "alice@corp.io", "h").
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Account{ID: "id-1", Email: "alice@corp.io", PasswordHash: "h"})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

func TestGetByEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(byEmailQ).
		WithArgs("Alice@Corp.io").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow("id-1", "alice@corp.io", "h", created))

	got, err := repo.GetByEmail(context.Background(), "Alice@Corp.io")
	require.NoError(t, err)
	assert.Equal(t, &models.Account{ID: "id-1", Email: "alice@corp.io", PasswordHash: "h", CreatedAt: created}, got)
}

func TestGetByEmail_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(byEmailQ).WithArgs("ghost@corp.io").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@corp.io")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(byIDQ).WithArgs("id-1").WillReturnError(errors.New("db err"))

	_, err := repo.GetByID(context.Background(), "id-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
	assert.Contains(t, err.Error(), "db error: db err")
}
