package accounts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vehiclecheck/internal/common"
	"github.com/dmitrijs2005/vehiclecheck/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

const (
	insertQ     = `(?s)^INSERT\s+INTO\s+accounts\s*\(email,\s*secret_hash\)\s*VALUES\s*\(\$1,\s*\$2\)\s*RETURNING\s+id,\s*created_at$`
	byEmailQ    = `(?s)^SELECT\s+id,\s*email,\s*secret_hash,\s*created_at\s+FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1$`
	byIDQ       = `(?s)^SELECT\s+id,\s*email,\s*secret_hash,\s*created_at\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`
	updateQ     = `^UPDATE\s+accounts\s+SET\s+secret_hash\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1$`
	deleteQ     = `^DELETE\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`
	sampleEmail = "sophia@example.com"
)

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(insertQ).
		WithArgs(sampleEmail, []byte("hash")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("u-1", created))

	got, err := repo.Create(context.Background(), &models.Account{Email: sampleEmail, SecretHash: []byte("hash")})
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)
	assert.Equal(t, created, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_EmailTaken(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQ).
		WithArgs(sampleEmail, []byte("hash")).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	_, err := repo.Create(context.Background(), &models.Account{Email: sampleEmail, SecretHash: []byte("hash")})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQ).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.Account{Email: sampleEmail})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: db down")
}

func TestGetByEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(byEmailQ).
		WithArgs(sampleEmail).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "secret_hash", "created_at"}).
			AddRow("u-1", sampleEmail, []byte("hash"), created))
	mock.ExpectQuery(byEmailQ).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.GetByEmail(context.Background(), sampleEmail)
	require.NoError(t, err)
	assert.Equal(t, &models.Account{ID: "u-1", Email: sampleEmail, SecretHash: []byte("hash"), CreatedAt: created}, got)

	_, err = repo.GetByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(byIDQ).WithArgs("u-1").WillReturnError(errors.New("db err"))

	_, err := repo.GetByID(context.Background(), "u-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdateSecret(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(updateQ).WithArgs("u-1", []byte("new")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateQ).WithArgs("u-2", []byte("new")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateSecret(context.Background(), "u-1", []byte("new")))
	assert.ErrorIs(t, repo.UpdateSecret(context.Background(), "u-2", []byte("new")), common.ErrorNotFound)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(deleteQ).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteQ).WithArgs("u-1").WillReturnError(errors.New("db err"))

	require.NoError(t, repo.Delete(context.Background(), "u-1"))
	assert.Error(t, repo.Delete(context.Background(), "u-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
