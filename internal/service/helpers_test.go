package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/shopease/shop-ease-backend/internal/config"
	"github.com/shopease/shop-ease-backend/internal/model"
	"github.com/shopease/shop-ease-backend/internal/queue"
	"github.com/shopease/shop-ease-backend/internal/repository"
	"github.com/shopease/shop-ease-backend/internal/utils"
)

const (
	testSecret     = "shopease-secret-key-32bytes-long-12345678"
	refreshTTL     = 7 * 24 * time.Hour
	refreshPrefix  = "shopease:refresh_token:"
	userSetPrefix  = "shopease:user:refresh_tokens:"
	alicePassword  = "Passw0rd1"
	aliceID        = int64(1001)
	disabledUserID = int64(1002)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeDirectory is an in-memory UserDirectory.
type fakeDirectory struct {
	mu      sync.Mutex
	users   map[int64]model.User
	nextID  int64
	findErr error
}

func newFakeDirectory(t *testing.T) *fakeDirectory {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(alicePassword), bcrypt.MinCost)
	require.NoError(t, err)
	return &fakeDirectory{
		nextID: 2000,
		users: map[int64]model.User{
			aliceID: {ID: aliceID, Username: "alice", PasswordHash: string(hash), Nickname: "Alice", Avatar: "https://cdn/a.png", Status: model.UserStatusActive},
			disabledUserID: {ID: disabledUserID, Username: "mallory", PasswordHash: string(hash), Status: model.UserStatusDisabled},
		},
	}
}

func (d *fakeDirectory) FindByUsername(_ context.Context, username string) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return model.User{}, d.findErr
	}
	for _, u := range d.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (d *fakeDirectory) FindByID(_ context.Context, id int64) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return model.User{}, d.findErr
	}
	u, ok := d.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) Create(_ context.Context, u model.User) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.users {
		if existing.Username == u.Username {
			return 0, repository.ErrUsernameExists
		}
	}
	d.nextID++
	u.ID = d.nextID
	d.users[u.ID] = u
	return u.ID, nil
}

func (d *fakeDirectory) UpdatePassword(_ context.Context, id int64, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	d.users[id] = u
	return nil
}

func (d *fakeDirectory) UpdateProfile(_ context.Context, id int64, nickname, phone string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Nickname, u.Phone = nickname, phone
	d.users[id] = u
	return nil
}

func (d *fakeDirectory) setStatus(id int64, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.users[id]
	u.Status = status
	d.users[id] = u
}

func (d *fakeDirectory) remove(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, id)
}

// faultyStore wraps a real store and injects failures.
type faultyStore struct {
	repository.CredentialStore

	mu           sync.Mutex
	failSet      bool
	failDeleteOn map[string]bool
	blockHashSet bool
}

var errInjected = errors.New("injected store failure")

func (s *faultyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.CredentialStore.Set(ctx, key, value, ttl)
}

func (s *faultyStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	fail := s.failDeleteOn[key]
	s.mu.Unlock()
	if fail {
		return false, errInjected
	}
	return s.CredentialStore.Delete(ctx, key)
}

func (s *faultyStore) HashSet(ctx context.Context, key, field, value string) error {
	s.mu.Lock()
	block := s.blockHashSet
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.CredentialStore.HashSet(ctx, key, field, value)
}

func (s *faultyStore) failDeleteFor(raw string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeleteOn == nil {
		s.failDeleteOn = map[string]bool{}
	}
	s.failDeleteOn[refreshPrefix+utils.HashRefreshRaw(raw)] = fail
}

// recordingPublisher captures events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.SessionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.SessionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	mr    *miniredis.Miniredis
	store *faultyStore
	dir   *fakeDirectory
	clk   *fakeClock
	codec *utils.TokenCodec
	m     *SessionManager
	users *UserService
	pub   *recordingPublisher
}

func newHarness(t *testing.T, cfg config.SessionConfig) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := &fakeClock{t: time.Date(2025, 11, 30, 10, 0, 0, 0, time.UTC)}
	codec, err := utils.NewTokenCodec(config.TokenConfig{
		JWTSecret:  testSecret,
		AccessTTL:  30 * time.Minute,
		RefreshTTL: refreshTTL,
	}, utils.WithClock(clk.Now))
	require.NoError(t, err)

	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = refreshTTL
	}
	store := &faultyStore{CredentialStore: repository.NewRedisCredentialStore(rdb)}
	dir := newFakeDirectory(t)
	pub := &recordingPublisher{}
	log := zaptest.NewLogger(t)
	m := NewSessionManager(dir, store, codec, cfg, log, WithEvents(pub), WithManagerClock(clk.Now))

	return &harness{
		mr:    mr,
		store: store,
		dir:   dir,
		clk:   clk,
		codec: codec,
		m:     m,
		users: NewUserService(dir, m, bcrypt.MinCost, log),
		pub:   pub,
	}
}

func (h *harness) login(t *testing.T) LoginResult {
	t.Helper()
	res, err := h.m.Login(context.Background(), "alice", alicePassword)
	require.NoError(t, err)
	return res
}

// assertIndexConsistent checks that every refresh key is a member of its
// user's hash and every member has a refresh key pointing back to the user.
func assertIndexConsistent(t *testing.T, mr *miniredis.Miniredis) {
	t.Helper()
	for _, key := range mr.Keys() {
		switch {
		case strings.HasPrefix(key, refreshPrefix):
			digest := strings.TrimPrefix(key, refreshPrefix)
			uid, err := mr.Get(key)
			require.NoError(t, err)
			assert.NotEmpty(t, mr.HGet(userSetPrefix+uid, digest), "refresh key %s missing from user %s", digest, uid)
		case strings.HasPrefix(key, userSetPrefix):
			uid := strings.TrimPrefix(key, userSetPrefix)
			fields, err := mr.HKeys(key)
			require.NoError(t, err)
			for _, digest := range fields {
				owner, err := mr.Get(refreshPrefix + digest)
				require.NoError(t, err, "member %s of user %s has no refresh key", digest, uid)
				assert.Equal(t, uid, owner)
			}
		}
	}
}

func userKey(id int64) string { return userSetPrefix + strconv.FormatInt(id, 10) }
