package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/model"
	"github.com/shopease/shop-ease-backend/internal/repository"
	"github.com/shopease/shop-ease-backend/internal/utils"
)

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Username string
	Password string
	Nickname string
	Phone    string
}

// UserService implements account operations.  Password changes revoke
// every session of the user through the SessionManager.  Directory calls
// share the manager's store timeout.
type UserService struct {
	users      UserDirectory
	sessions   *SessionManager
	bcryptCost int
	timeout    time.Duration
	log        *zap.Logger
}

func NewUserService(users UserDirectory, sessions *SessionManager, bcryptCost int, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{users: users, sessions: sessions, bcryptCost: bcryptCost, timeout: sessions.timeout, log: log}
}

// directory bounds a single user directory call.
func (s *UserService) directory(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Register creates an active account and returns its id.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (int64, error) {
	in.Username = strings.TrimSpace(in.Username)
	dctx, cancel := s.directory(ctx)
	_, err := s.users.FindByUsername(dctx, in.Username)
	cancel()
	switch {
	case err == nil:
		return 0, ErrUsernameTaken
	case !errors.Is(err, repository.ErrNotFound):
		return 0, fmt.Errorf("check username: %w", err)
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	dctx, cancel = s.directory(ctx)
	defer cancel()
	id, err := s.users.Create(dctx, model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Nickname:     strings.TrimSpace(in.Nickname),
		Phone:        strings.TrimSpace(in.Phone),
		Status:       model.UserStatusActive,
	})
	if errors.Is(err, repository.ErrUsernameExists) {
		return 0, ErrUsernameTaken
	}
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", zap.Int64("user_id", id), zap.String("username", in.Username))
	return id, nil
}

// ChangePassword replaces the password hash and then revokes all refresh
// tokens of the user.  Revocation problems are reported, not returned.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) (RevokeReport, error) {
	dctx, cancel := s.directory(ctx)
	u, err := s.users.FindByID(dctx, userID)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		return RevokeReport{}, ErrUserUnavailable
	}
	if err != nil {
		return RevokeReport{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !utils.VerifyPassword(u.PasswordHash, oldPassword) {
		return RevokeReport{}, ErrOldPasswordMismatch
	}

	hash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return RevokeReport{}, fmt.Errorf("hash password: %w", err)
	}
	dctx, cancel = s.directory(ctx)
	err = s.users.UpdatePassword(dctx, userID, hash)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RevokeReport{}, ErrUserUnavailable
		}
		return RevokeReport{}, fmt.Errorf("update password: %w", err)
	}

	// The new hash is committed; old sessions go even if the caller left.
	rep := s.sessions.RevokeAllForUser(context.WithoutCancel(ctx), userID)
	s.log.Info("password changed", zap.Int64("user_id", userID), zap.Int("sessions_revoked", rep.Revoked))
	return rep, nil
}

// Current returns the user behind an authenticated request.
func (s *UserService) Current(ctx context.Context, userID int64) (model.User, error) {
	ctx, cancel := s.directory(ctx)
	defer cancel()
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrUserUnavailable
	}
	if err != nil {
		return model.User{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	return u, nil
}

// UpdateCurrent changes nickname and phone.
func (s *UserService) UpdateCurrent(ctx context.Context, userID int64, nickname, phone string) error {
	ctx, cancel := s.directory(ctx)
	defer cancel()
	err := s.users.UpdateProfile(ctx, userID, strings.TrimSpace(nickname), strings.TrimSpace(phone))
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserUnavailable
	}
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}
