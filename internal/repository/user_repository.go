package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/shopease/shop-ease-backend/internal/model"
)

const userColumns = "id,username,password,nickname,phone,avatar,status,create_time"

// UserRepo is the MySQL user directory.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts an active user and returns its ID.  u.PasswordHash must
// already be a bcrypt hash.
func (r *UserRepo) Create(ctx context.Context, u model.User) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO sys_user (username, password, nickname, phone, status) VALUES (?,?,?,?,?)",
		strings.TrimSpace(u.Username), u.PasswordHash, nullable(u.Nickname), nullable(u.Phone), model.UserStatusActive)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return 0, ErrUsernameExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// FindByUsername fetches a user by exact username.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM sys_user WHERE username=? LIMIT 1",
		strings.TrimSpace(username))
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id int64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM sys_user WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.execOne(ctx, "UPDATE sys_user SET password=? WHERE id=?", passwordHash, id)
}

// UpdateProfile replaces nickname and phone.
func (r *UserRepo) UpdateProfile(ctx context.Context, id int64, nickname, phone string) error {
	return r.execOne(ctx, "UPDATE sys_user SET nickname=?, phone=? WHERE id=?", nullable(nickname), nullable(phone), id)
}

func (r *UserRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	// MySQL reports 0 affected rows when the values are unchanged, so only
	// an existence check distinguishes "same value" from "no such user".
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		var one int
		if err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM sys_user WHERE id=?", args[len(args)-1]).Scan(&one); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("update user: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	var nickname, phone, avatar sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &nickname, &phone, &avatar, &u.Status, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("select user: %w", err)
	}
	u.Nickname, u.Phone, u.Avatar = nickname.String, phone.String, avatar.String
	return u, nil
}

func nullable(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
