package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestPlaylistSoftDeleteStampsDeletedAt(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPlaylistRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE playlists SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs("pl-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.SoftDelete(context.Background(), nil, "pl-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaylistSoftDeleteTwiceIsNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPlaylistRepository(db)

	mock.ExpectExec("UPDATE playlists SET deleted_at").
		WithArgs("pl-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), nil, "pl-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSocialIdentityDeleteIsHard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSocialIdentityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM social_identities WHERE id = $1")).
		WithArgs("sid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Delete(context.Background(), nil, "sid-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByIDWrapsExecError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM users").
		WithArgs("u-1").
		WillReturnError(sql.ErrConnDone)

	err := NewUserRepository(db).Delete(context.Background(), nil, "u-1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "hard delete users")
	assert.NoError(t, mock.ExpectationsWereMet())
}
