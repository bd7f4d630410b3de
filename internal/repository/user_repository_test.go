package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopease/shop-ease-backend/internal/model"
)

func newRepoWithMock(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewUserRepo(db), mock
}

var userCols = []string{"id", "username", "password", "nickname", "phone", "avatar", "status", "create_time"}

func TestUserRepo_FindByUsername_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	created := time.Date(2025, 11, 30, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)^SELECT\s+id,username,password,nickname,phone,avatar,status,create_time\s+FROM\s+sys_user\s+WHERE\s+username=\?\s+LIMIT 1$`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1001, "alice", "$2a$10$hash", "Alice", nil, nil, 1, created))

	u, err := repo.FindByUsername(context.Background(), "  alice ")
	require.NoError(t, err)
	assert.Equal(t, model.User{ID: 1001, Username: "alice", PasswordHash: "$2a$10$hash", Nickname: "Alice", Status: 1, CreatedAt: created}, u)
	assert.False(t, u.Disabled())
}

func TestUserRepo_FindByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+sys_user\s+WHERE\s+id=\?`).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_FindByID_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+sys_user\s+WHERE\s+id=\?`).
		WithArgs(int64(7)).
		WillReturnError(errors.New("db down"))

	_, err := repo.FindByID(context.Background(), 7)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "db down")
}

func TestUserRepo_Create(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT INTO sys_user \(username, password, nickname, phone, status\)`).
		WithArgs("bob", "hash", sql.NullString{String: "Bob", Valid: true}, sql.NullString{}, model.UserStatusActive).
		WillReturnResult(sqlmock.NewResult(42, 1))

	id, err := repo.Create(context.Background(), model.User{Username: "bob", PasswordHash: "hash", Nickname: "Bob"})
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)
}

func TestUserRepo_Create_Duplicate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT INTO sys_user`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'bob'"})

	_, err := repo.Create(context.Background(), model.User{Username: "bob", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestUserRepo_UpdatePassword(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE sys_user SET password=\? WHERE id=\?`).
		WithArgs("newhash", int64(1001)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), 1001, "newhash"))
}

func TestUserRepo_UpdatePassword_MissingUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE sys_user SET password=\? WHERE id=\?`).
		WithArgs("newhash", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM sys_user WHERE id=\?`).
		WithArgs(int64(5)).
		WillReturnError(sql.ErrNoRows)

	assert.ErrorIs(t, repo.UpdatePassword(context.Background(), 5, "newhash"), ErrNotFound)
}

func TestUserRepo_UpdateProfile_Unchanged(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE sys_user SET nickname=\?, phone=\? WHERE id=\?`).
		WithArgs(sql.NullString{String: "Al", Valid: true}, sql.NullString{String: "13800000000", Valid: true}, int64(1001)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT 1 FROM sys_user WHERE id=\?`).
		WithArgs(int64(1001)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	require.NoError(t, repo.UpdateProfile(context.Background(), 1001, "Al", "13800000000"))
}
