package resettokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vehiclecheck/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `^INSERT\s+INTO\s+reset_tokens\s*\(user_id,\s*token,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)$`

	mock.ExpectExec(q).WithArgs("u1", "tok", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("u1", "tok", sqlmock.AnyArg()).WillReturnError(errors.New("db down"))

	require.NoError(t, repo.Create(context.Background(), "u1", "tok", time.Hour))
	assert.Error(t, repo.Create(context.Background(), "u1", "tok", time.Hour))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFind(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `^SELECT\s+user_id,\s*token,\s*expires_at\s+FROM\s+reset_tokens\s+WHERE\s+token\s*=\s*\$1$`
	expires := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q).WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "token", "expires_at"}).AddRow("u1", "tok", expires))
	mock.ExpectQuery(q).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	got, err := repo.Find(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.Expires.Equal(expires))

	_, err = repo.Find(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `^DELETE\s+FROM\s+reset_tokens\s+WHERE\s+token\s*=\s*\$1$`

	mock.ExpectExec(q).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "tok"))
}
