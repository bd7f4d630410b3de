package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/config"
	"github.com/shopease/shop-ease-backend/internal/metrics"
	"github.com/shopease/shop-ease-backend/internal/repository"
)

const (
	defaultStoreTimeout = 3 * time.Second
	defaultKeyPrefix    = "shopease"
)

// RevokeReport summarises a revoke-all run.  Err joins every failure that
// was swallowed; it is informational and never fails the caller.
type RevokeReport struct {
	Found   int
	Revoked int
	Failed  int
	Err     error
}

// SessionIndex maintains the two sides of the refresh token index:
//
//	<prefix>:refresh_token:<digest>          string, value = user id
//	<prefix>:user:refresh_tokens:<userId>    hash, field = digest, value = issued-at (unix)
//
// The store offers no multi-key transactions, so writes are ordered such
// that a resolvable refresh key is always enumerable from its user's hash.
type SessionIndex struct {
	store   repository.CredentialStore
	ttl     time.Duration
	timeout time.Duration
	prefix  string
	log     *zap.Logger
}

// NewSessionIndex applies defaults for a zero StoreTimeout or KeyPrefix.
// RefreshTTL must be positive.
func NewSessionIndex(store repository.CredentialStore, cfg config.SessionConfig, log *zap.Logger) *SessionIndex {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionIndex{store: store, ttl: cfg.RefreshTTL, timeout: cfg.StoreTimeout, prefix: cfg.KeyPrefix, log: log}
}

func (x *SessionIndex) refreshKey(digest string) string {
	return x.prefix + ":refresh_token:" + digest
}

func (x *SessionIndex) userKey(userID int64) string {
	return x.prefix + ":user:refresh_tokens:" + strconv.FormatInt(userID, 10)
}

// do runs one store call under the store timeout and classifies its error.
// repository.ErrNotFound passes through untouched.
func (x *SessionIndex) do(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return classifyStoreErr(op, err)
}

func classifyStoreErr(op string, err error) error {
	if err == nil || errors.Is(err, repository.ErrNotFound) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Put records a new session.  The user hash member is written and its TTL
// extended before the refresh key is created; if the refresh key cannot be
// written the member is removed again on a best-effort basis.
func (x *SessionIndex) Put(ctx context.Context, userID int64, digest string, issuedAt time.Time) error {
	uk := x.userKey(userID)
	if err := x.do(ctx, "hset", func(ctx context.Context) error {
		return x.store.HashSet(ctx, uk, digest, strconv.FormatInt(issuedAt.Unix(), 10))
	}); err != nil {
		return err
	}

	err := x.do(ctx, "expire", func(ctx context.Context) error {
		_, err := x.store.Expire(ctx, uk, x.ttl)
		return err
	})
	if err == nil {
		err = x.do(ctx, "set", func(ctx context.Context) error {
			return x.store.Set(ctx, x.refreshKey(digest), strconv.FormatInt(userID, 10), x.ttl)
		})
	}
	if err != nil {
		x.dropMember(ctx, userID, digest)
		return err
	}
	return nil
}

// dropMember undoes a half-written Put.  It runs detached from ctx so that
// a cancelled request still gets cleaned up.
func (x *SessionIndex) dropMember(ctx context.Context, userID int64, digest string) {
	ctx = context.WithoutCancel(ctx)
	if err := x.do(ctx, "hdel", func(ctx context.Context) error {
		_, err := x.store.HashDelete(ctx, x.userKey(userID), digest)
		return err
	}); err != nil {
		x.log.Warn("session index: rollback of user member failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

// Owner resolves a refresh token digest to its user id.  Absent, expired
// and revoked tokens all return repository.ErrNotFound.
func (x *SessionIndex) Owner(ctx context.Context, digest string) (int64, error) {
	var v string
	err := x.do(ctx, "get", func(ctx context.Context) (err error) {
		v, err = x.store.Get(ctx, x.refreshKey(digest))
		return err
	})
	if err != nil {
		return 0, err
	}
	id, perr := strconv.ParseInt(v, 10, 64)
	if perr != nil || id <= 0 {
		x.log.Error("session index: corrupt owner value", zap.String("value", v))
		return 0, repository.ErrNotFound
	}
	return id, nil
}

// Remove deletes one session from both sides.  The refresh key goes first;
// both deletes are attempted and their errors joined.
func (x *SessionIndex) Remove(ctx context.Context, userID int64, digest string) error {
	errKey := x.do(ctx, "del", func(ctx context.Context) error {
		_, err := x.store.Delete(ctx, x.refreshKey(digest))
		return err
	})
	errMember := x.do(ctx, "hdel", func(ctx context.Context) error {
		_, err := x.store.HashDelete(ctx, x.userKey(userID), digest)
		return err
	})
	return errors.Join(errKey, errMember)
}

// Members returns digest -> issued-at for every indexed session of a user.
func (x *SessionIndex) Members(ctx context.Context, userID int64) (map[string]time.Time, error) {
	var raw map[string]string
	err := x.do(ctx, "hgetall", func(ctx context.Context) (err error) {
		raw, err = x.store.HashGetAll(ctx, x.userKey(userID))
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(raw))
	for digest, v := range raw {
		var at time.Time
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			at = time.Unix(sec, 0).UTC()
		}
		out[digest] = at
	}
	return out, nil
}

// RemoveAll deletes the refresh key of every member and then removes the
// members whose key is gone.  Members whose delete failed stay in the hash
// so that a later run can find them again.  Members added concurrently are
// not touched.  The hash itself is never DELed; HDEL of the revoked members
// takes its place and an emptied hash disappears on its own.
func (x *SessionIndex) RemoveAll(ctx context.Context, userID int64) RevokeReport {
	members, err := x.Members(ctx, userID)
	if err != nil {
		return RevokeReport{Err: err}
	}
	rep := RevokeReport{Found: len(members)}
	if len(members) == 0 {
		return rep
	}

	var errs []error
	removed := make([]string, 0, len(members))
	for digest := range members {
		err := x.do(ctx, "del", func(ctx context.Context) error {
			_, err := x.store.Delete(ctx, x.refreshKey(digest))
			return err
		})
		if err != nil {
			rep.Failed++
			errs = append(errs, err)
			x.log.Warn("revoke-all: refresh token delete failed",
				zap.Int64("user_id", userID), zap.String("digest", shortDigest(digest)), zap.Error(err))
			continue
		}
		removed = append(removed, digest)
	}
	rep.Revoked = len(removed)

	if len(removed) > 0 {
		if err := x.do(ctx, "hdel", func(ctx context.Context) error {
			_, err := x.store.HashDelete(ctx, x.userKey(userID), removed...)
			return err
		}); err != nil {
			errs = append(errs, err)
			x.log.Warn("revoke-all: user index cleanup failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	rep.Err = errors.Join(errs...)
	return rep
}

// shortDigest keeps log lines free of full token digests.
func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
