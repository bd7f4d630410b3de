package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/shopease/shop-ease-backend/internal/config"
	"github.com/shopease/shop-ease-backend/internal/handler"
	"github.com/shopease/shop-ease-backend/internal/middleware"
	"github.com/shopease/shop-ease-backend/internal/model"
	"github.com/shopease/shop-ease-backend/internal/repository"
	"github.com/shopease/shop-ease-backend/internal/service"
	"github.com/shopease/shop-ease-backend/internal/utils"
)

const testSecret = "shopease-secret-key-32bytes-long-12345678"

// memUsers is an in-memory service.UserDirectory.
type memUsers struct {
	mu    sync.Mutex
	users map[int64]model.User
	next  int64
}

func (d *memUsers) FindByUsername(_ context.Context, username string) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (d *memUsers) FindByID(_ context.Context, id int64) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (d *memUsers) Create(_ context.Context, u model.User) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.users {
		if existing.Username == u.Username {
			return 0, repository.ErrUsernameExists
		}
	}
	d.next++
	u.ID = d.next
	u.CreatedAt = time.Date(2025, 11, 30, 10, 0, 0, 0, time.UTC)
	d.users[u.ID] = u
	return u.ID, nil
}

func (d *memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
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

func (d *memUsers) UpdateProfile(_ context.Context, id int64, nickname, phone string) error {
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

type userAPI struct {
	e     *echo.Echo
	mr    *miniredis.Miniredis
	codec *utils.TokenCodec
}

func newUserAPI(t *testing.T) *userAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	codec, err := utils.NewTokenCodec(config.TokenConfig{
		JWTSecret:  testSecret,
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("Passw0rd1"), bcrypt.MinCost)
	require.NoError(t, err)
	users := &memUsers{next: 2000, users: map[int64]model.User{
		1001: {ID: 1001, Username: "alice", PasswordHash: string(hash), Nickname: "Alice", Status: model.UserStatusActive},
	}}

	log := zaptest.NewLogger(t)
	sessions := service.NewSessionManager(users, repository.NewRedisCredentialStore(rdb), codec,
		config.SessionConfig{RefreshTTL: codec.RefreshTTL()}, log)
	accounts := service.NewUserService(users, sessions, bcrypt.MinCost, log)

	e := New(log)
	RegisterRoutes(e)
	RegisterUser(e, handler.NewUserHandler(sessions, accounts, codec))
	return &userAPI{e: e, mr: mr, codec: codec}
}

func (a *userAPI) call(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, model.Result) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var res model.Result
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	}
	return rec, res
}

type tokens struct {
	Access  string
	Refresh string
}

func (a *userAPI) login(t *testing.T, username, password string) tokens {
	t.Helper()
	rec, res := a.call(t, http.MethodPost, "/sys/user/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.CodeSuccess, res.Code, res.Msg)
	data := res.Data.(map[string]any)
	return tokens{Access: data["accessToken"].(string), Refresh: data["refreshToken"].(string)}
}

func TestUserAPI_LoginEnvelope(t *testing.T) {
	a := newUserAPI(t)
	rec, res := a.call(t, http.MethodPost, "/sys/user/login", "", map[string]string{"username": "alice", "password": "Passw0rd1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.CodeSuccess, res.Code)
	data := res.Data.(map[string]any)
	assert.EqualValues(t, 1001, data["userId"])
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, "Alice", data["nickname"])
	assert.Regexp(t, `^[0-9a-f]{64}$`, data["refreshToken"])

	id, err := a.codec.VerifyAccess(data["accessToken"].(string))
	require.NoError(t, err)
	assert.Equal(t, int64(1001), id.UserID)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestUserAPI_LoginFailures(t *testing.T) {
	a := newUserAPI(t)

	rec, res := a.call(t, http.MethodPost, "/sys/user/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.CodeFailure, res.Code)
	assert.Equal(t, "incorrect username or password", res.Msg)

	_, res = a.call(t, http.MethodPost, "/sys/user/login", "", map[string]string{"username": "alice"})
	assert.Equal(t, "password must not be empty", res.Msg)

	req := httptest.NewRequest(http.MethodPost, "/sys/user/login", bytes.NewBufferString(`{"username":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	raw := httptest.NewRecorder()
	a.e.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
	assert.Contains(t, raw.Body.String(), handler.MsgMalformedBody)
}

func TestUserAPI_StoreOutageIsOpaque(t *testing.T) {
	a := newUserAPI(t)
	a.mr.SetError("ERR injected failure")

	rec, res := a.call(t, http.MethodPost, "/sys/user/login", "", map[string]string{"username": "alice", "password": "Passw0rd1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.CodeFailure, res.Code)
	assert.Equal(t, handler.MsgSystemBusy, res.Msg)
	assert.Nil(t, res.Data)
}

func TestUserAPI_RefreshAndLogout(t *testing.T) {
	a := newUserAPI(t)
	tk := a.login(t, "alice", "Passw0rd1")

	_, res := a.call(t, http.MethodPost, "/sys/user/refreshToken", "", map[string]string{"refreshToken": tk.Refresh})
	require.Equal(t, model.CodeSuccess, res.Code, res.Msg)
	access := res.Data.(map[string]any)["accessToken"].(string)
	_, err := a.codec.VerifyAccess(access)
	assert.NoError(t, err)

	_, res = a.call(t, http.MethodPost, "/sys/user/refreshToken", "", map[string]string{"refreshToken": ""})
	assert.Equal(t, "refresh token must not be empty", res.Msg)

	_, res = a.call(t, http.MethodPost, "/sys/user/logout", "", map[string]string{"refreshToken": tk.Refresh})
	assert.Equal(t, model.CodeSuccess, res.Code)
	_, res = a.call(t, http.MethodPost, "/sys/user/logout", "", map[string]string{"refreshToken": tk.Refresh})
	assert.Equal(t, model.CodeSuccess, res.Code, "logout is idempotent")

	_, res = a.call(t, http.MethodPost, "/sys/user/refreshToken", "", map[string]string{"refreshToken": tk.Refresh})
	assert.Equal(t, model.CodeFailure, res.Code)
	assert.Equal(t, "refresh token is invalid or expired, please log in again", res.Msg)
}

func TestUserAPI_AuthenticatedEndpointsNeedAToken(t *testing.T) {
	a := newUserAPI(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/sys/user/current"},
		{http.MethodPut, "/sys/user/current"},
		{http.MethodPut, "/sys/user/password"},
	} {
		rec, res := a.call(t, tc.method, tc.path, "", map[string]string{})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		assert.Equal(t, model.CodeUnauthenticated, res.Code)
		assert.Equal(t, middleware.MsgSessionExpired, res.Msg)
	}

	rec, _ := a.call(t, http.MethodGet, "/sys/user/current", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserAPI_RegisterCurrentAndPasswordChange(t *testing.T) {
	a := newUserAPI(t)

	_, res := a.call(t, http.MethodPost, "/sys/user/register", "", map[string]string{
		"username": "carol", "password": "carolPw1", "confirmPassword": "carolPw2",
	})
	assert.Equal(t, "the two passwords do not match", res.Msg)

	_, res = a.call(t, http.MethodPost, "/sys/user/register", "", map[string]string{
		"username": "carol", "password": "carolPw1", "confirmPassword": "carolPw1", "nickname": "Carol",
	})
	require.Equal(t, model.CodeSuccess, res.Code, res.Msg)

	_, res = a.call(t, http.MethodPost, "/sys/user/register", "", map[string]string{
		"username": "carol", "password": "carolPw1", "confirmPassword": "carolPw1",
	})
	assert.Equal(t, model.CodeFailure, res.Code)

	first := a.login(t, "carol", "carolPw1")
	second := a.login(t, "carol", "carolPw1")

	_, res = a.call(t, http.MethodGet, "/sys/user/current", first.Access, nil)
	require.Equal(t, model.CodeSuccess, res.Code, res.Msg)
	assert.Equal(t, "Carol", res.Data.(map[string]any)["nickname"])

	_, res = a.call(t, http.MethodPut, "/sys/user/current", first.Access, map[string]string{"nickname": "Caz", "phone": "13912345678"})
	require.Equal(t, model.CodeSuccess, res.Code, res.Msg)
	_, res = a.call(t, http.MethodGet, "/sys/user/current", first.Access, nil)
	assert.Equal(t, "13912345678", res.Data.(map[string]any)["phone"])

	_, res = a.call(t, http.MethodPut, "/sys/user/password", first.Access, map[string]string{
		"oldPassword": "carolPw1", "newPassword": "carolPw9", "confirmNewPassword": "carolPw9",
	})
	require.Equal(t, model.CodeSuccess, res.Code, res.Msg)

	for _, raw := range []string{first.Refresh, second.Refresh} {
		_, res = a.call(t, http.MethodPost, "/sys/user/refreshToken", "", map[string]string{"refreshToken": raw})
		assert.Equal(t, model.CodeFailure, res.Code)
	}
	a.login(t, "carol", "carolPw9")
}

func TestHealthz(t *testing.T) {
	a := newUserAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
