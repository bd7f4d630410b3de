// Package service implements the session token lifecycle and the user
// operations built on top of it.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/config"
	"github.com/shopease/shop-ease-backend/internal/metrics"
	"github.com/shopease/shop-ease-backend/internal/model"
	"github.com/shopease/shop-ease-backend/internal/queue"
	"github.com/shopease/shop-ease-backend/internal/repository"
	"github.com/shopease/shop-ease-backend/internal/utils"
)

const publishTimeout = 2 * time.Second

// UserDirectory is the relational user store.  Lookups return
// repository.ErrNotFound for absent users.
type UserDirectory interface {
	FindByUsername(ctx context.Context, username string) (model.User, error)
	FindByID(ctx context.Context, id int64) (model.User, error)
	Create(ctx context.Context, u model.User) (int64, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	UpdateProfile(ctx context.Context, id int64, nickname, phone string) error
}

// EventPublisher receives session audit events.  Failures are logged only.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.SessionEvent) error
}

// LoginResult is everything a successful login hands back to the client.
type LoginResult struct {
	Access   utils.AccessToken
	Refresh  utils.RefreshToken
	UserID   int64
	Username string
	Nickname string
	Avatar   string
}

// SessionInfo describes one live refresh token without revealing it.
type SessionInfo struct {
	Digest   string
	IssuedAt time.Time
}

// SessionManager issues, refreshes and revokes sessions.  It keeps no
// in-process state; all shared state lives in the credential store.
type SessionManager struct {
	users   UserDirectory
	index   *SessionIndex
	codec   *utils.TokenCodec
	log     *zap.Logger
	events  EventPublisher
	now     func() time.Time
	timeout time.Duration
}

// ManagerOption customises a SessionManager.
type ManagerOption func(*SessionManager)

// WithEvents publishes session events to p.
func WithEvents(p EventPublisher) ManagerOption { return func(m *SessionManager) { m.events = p } }

// WithManagerClock replaces time.Now for issued-at stamps.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) { m.now = now }
}

// NewSessionManager wires the manager.  A zero cfg.RefreshTTL takes the
// codec's refresh TTL so both index sides and the token agree.
func NewSessionManager(users UserDirectory, store repository.CredentialStore, codec *utils.TokenCodec,
	cfg config.SessionConfig, log *zap.Logger, opts ...ManagerOption) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = codec.RefreshTTL()
	}
	idx := NewSessionIndex(store, cfg, log)
	m := &SessionManager{
		users:   users,
		index:   idx,
		codec:   codec,
		log:     log,
		now:     time.Now,
		timeout: idx.timeout,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Index exposes the underlying session index.
func (m *SessionManager) Index() *SessionIndex { return m.index }

func (m *SessionManager) findByUsername(ctx context.Context, username string) (model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.users.FindByUsername(ctx, username)
}

func (m *SessionManager) findByID(ctx context.Context, id int64) (model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.users.FindByID(ctx, id)
}

// Login verifies credentials and opens a new session.  An unknown username
// and a wrong password produce the same error.  Tokens are only returned
// once the session index holds the refresh token.
func (m *SessionManager) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	u, err := m.findByUsername(ctx, username)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.BurnPasswordCheck(password)
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		m.log.Info("login failed: unknown username", zap.String("username", username))
		return LoginResult{}, ErrInvalidCredentials
	case err != nil:
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return LoginResult{}, fmt.Errorf("load user %q: %w", username, err)
	}

	if !utils.VerifyPassword(u.PasswordHash, password) {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		m.log.Info("login failed: wrong password", zap.String("username", username))
		return LoginResult{}, ErrInvalidCredentials
	}
	if u.Disabled() {
		metrics.LoginAttemptsTotal.WithLabelValues("disabled").Inc()
		m.log.Info("login failed: account disabled", zap.String("username", username))
		return LoginResult{}, ErrAccountDisabled
	}

	access, err := m.codec.MintAccess(u.ID, u.Username)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return LoginResult{}, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := m.codec.MintRefresh()
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return LoginResult{}, fmt.Errorf("mint refresh token: %w", err)
	}

	if err := m.index.Put(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), m.now()); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("persist_failure").Inc()
		m.log.Error("login failed: refresh token not persisted",
			zap.Int64("user_id", u.ID), zap.String("username", u.Username), zap.Error(err))
		return LoginResult{}, fmt.Errorf("%w: %w", ErrSessionPersistFailure, err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	m.log.Info("user logged in", zap.Int64("user_id", u.ID), zap.String("username", u.Username))

	ev := queue.NewSessionEvent(queue.EventLogin, u.ID, m.now())
	ev.Username = u.Username
	m.publish(ctx, ev)

	return LoginResult{
		Access:   access,
		Refresh:  refresh,
		UserID:   u.ID,
		Username: u.Username,
		Nickname: u.Nickname,
		Avatar:   u.Avatar,
	}, nil
}

// RefreshAccess exchanges a live refresh token for a new access token.  The
// refresh token itself is not rotated.
func (m *SessionManager) RefreshAccess(ctx context.Context, refreshToken string) (utils.AccessToken, error) {
	raw := strings.TrimSpace(refreshToken)
	if raw == "" {
		metrics.TokenRefreshTotal.WithLabelValues("invalid_request").Inc()
		return utils.AccessToken{}, ErrInvalidRequest
	}
	digest := utils.HashRefreshRaw(raw)

	userID, err := m.index.Owner(ctx, digest)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		metrics.TokenRefreshTotal.WithLabelValues("invalid_token").Inc()
		return utils.AccessToken{}, ErrRefreshTokenInvalid
	case err != nil:
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		m.log.Error("refresh failed: owner lookup", zap.String("digest", shortDigest(digest)), zap.Error(err))
		return utils.AccessToken{}, err
	}

	u, err := m.findByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && u.Disabled()) {
		metrics.TokenRefreshTotal.WithLabelValues("user_unavailable").Inc()
		if cerr := m.index.Remove(context.WithoutCancel(ctx), userID, digest); cerr != nil {
			metrics.RevocationFailuresTotal.WithLabelValues("refresh_cleanup").Inc()
			m.log.Warn("refresh: cleanup of orphaned token failed", zap.Int64("user_id", userID), zap.Error(cerr))
		}
		return utils.AccessToken{}, ErrUserUnavailable
	}
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return utils.AccessToken{}, fmt.Errorf("load user %d: %w", userID, err)
	}

	access, err := m.codec.MintAccess(u.ID, u.Username)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return utils.AccessToken{}, fmt.Errorf("mint access token: %w", err)
	}
	metrics.TokenRefreshTotal.WithLabelValues("success").Inc()
	m.log.Debug("access token refreshed", zap.Int64("user_id", u.ID))
	return access, nil
}

// Logout revokes one refresh token.  Unknown tokens succeed silently and
// delete failures are only logged; the token then lives until its TTL.
func (m *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	raw := strings.TrimSpace(refreshToken)
	if raw == "" {
		return ErrInvalidRequest
	}
	digest := utils.HashRefreshRaw(raw)

	userID, err := m.index.Owner(ctx, digest)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		metrics.LogoutsTotal.WithLabelValues("noop").Inc()
		m.log.Debug("logout: refresh token already gone", zap.String("digest", shortDigest(digest)))
		return nil
	case err != nil:
		metrics.LogoutsTotal.WithLabelValues("error").Inc()
		m.log.Error("logout failed: owner lookup", zap.String("digest", shortDigest(digest)), zap.Error(err))
		return err
	}

	if err := m.index.Remove(ctx, userID, digest); err != nil {
		metrics.RevocationFailuresTotal.WithLabelValues("logout").Inc()
		m.log.Warn("logout: revocation incomplete", zap.Int64("user_id", userID), zap.Error(err))
	}
	metrics.LogoutsTotal.WithLabelValues("success").Inc()
	m.log.Info("user logged out", zap.Int64("user_id", userID))
	m.publish(ctx, queue.NewSessionEvent(queue.EventLogout, userID, m.now()))
	return nil
}

// RevokeAllForUser revokes every refresh token of a user.  It never fails;
// problems are reported in the returned RevokeReport and logged.
func (m *SessionManager) RevokeAllForUser(ctx context.Context, userID int64) RevokeReport {
	rep := m.index.RemoveAll(ctx, userID)
	metrics.SessionsRevokedTotal.Add(float64(rep.Revoked))
	if rep.Failed > 0 {
		metrics.RevocationFailuresTotal.WithLabelValues("revoke_all").Add(float64(rep.Failed))
	}
	fields := []zap.Field{
		zap.Int64("user_id", userID),
		zap.Int("found", rep.Found),
		zap.Int("revoked", rep.Revoked),
		zap.Int("failed", rep.Failed),
	}
	if rep.Err != nil {
		m.log.Warn("revoke-all finished with errors", append(fields, zap.Error(rep.Err))...)
	} else {
		m.log.Info("revoke-all finished", fields...)
	}

	ev := queue.NewSessionEvent(queue.EventRevokeAll, userID, m.now())
	ev.Revoked, ev.Failed = rep.Revoked, rep.Failed
	m.publish(ctx, ev)
	return rep
}

// Sessions lists a user's indexed sessions, newest first.
func (m *SessionManager) Sessions(ctx context.Context, userID int64) ([]SessionInfo, error) {
	members, err := m.index.Members(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(members))
	for d, at := range members {
		out = append(out, SessionInfo{Digest: d, IssuedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].Digest < out[j].Digest
		}
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

func (m *SessionManager) publish(ctx context.Context, ev queue.SessionEvent) {
	if m.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.Warn("session event not published", zap.String("type", ev.Type), zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
}
