package utils // package utils provides the token codec and hashing helpers

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for refresh tokens
	"encoding/hex"  // hex encoding and decoding functions
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/config"
)

// MinSecretBytes is the shortest HS256 secret accepted (256 bits).
const MinSecretBytes = 32

// refreshTokenBytes is the entropy of a refresh token: 32 bytes, 64 hex chars.
const refreshTokenBytes = 32

var (
	// ErrInvalidAccessToken is the only verification failure callers see.
	// Expired, tampered, malformed and wrongly signed tokens all map to it.
	ErrInvalidAccessToken = errors.New("invalid access token")

	// ErrTokenConfig reports an unusable secret or TTL at construction time.
	ErrTokenConfig = errors.New("invalid token config")
)

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long-lived opaque token used to obtain new
// access tokens.  Raw is returned to the client; the server only keeps
// HashRefreshRaw(Raw).
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// Identity is what a verified access token proves.
type Identity struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// accessClaims is the JWT payload.  userId and username mirror the claims
// the web client already reads; sub carries the same id as a string.
type accessClaims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenCodec mints and verifies access tokens and mints refresh tokens.  It
// holds only immutable configuration and is safe for concurrent use.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// CodecOption customises a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) CodecOption { return func(c *TokenCodec) { c.now = now } }

// WithLogger enables debug logging of verification failure causes.
func WithLogger(l *zap.Logger) CodecOption { return func(c *TokenCodec) { c.log = l } }

// NewTokenCodec validates cfg and returns a codec.  A non-nil error is a
// startup failure; there is no per-call configuration error afterwards.
func NewTokenCodec(cfg config.TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	if len(cfg.JWTSecret) < MinSecretBytes {
		return nil, fmt.Errorf("%w: JWT secret must be at least %d bytes", ErrTokenConfig, MinSecretBytes)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: token TTLs must be positive", ErrTokenConfig)
	}
	c := &TokenCodec{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// RefreshTTL is the lifetime given to refresh tokens and their index entries.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// MintAccess builds and signs an HS256 JWT for a user.
func (c *TokenCodec) MintAccess(userID int64, username string) (AccessToken, error) {
	now := c.now().UTC()
	exp := now.Add(c.accessTTL)
	claims := accessClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return AccessToken{}, err
	}
	// exp is carried in whole seconds inside the token; report the same value.
	return AccessToken{Token: signed, Exp: exp.Truncate(time.Second)}, nil
}

// MintRefresh returns a cryptographically secure random token.  It encodes
// no user information; the only way to resolve it is a store lookup.
func (c *TokenCodec) MintRefresh() (RefreshToken, error) {
	raw, err := randomHex(refreshTokenBytes)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: raw, Exp: c.now().UTC().Add(c.refreshTTL)}, nil
}

// VerifyAccess checks signature, algorithm and expiry.  Every failure is
// reported as ErrInvalidAccessToken.
func (c *TokenCodec) VerifyAccess(token string) (Identity, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		c.log.Debug("access token rejected", zap.String("cause", rejectCause(err)), zap.Error(err))
		return Identity{}, ErrInvalidAccessToken
	}
	if claims.UserID <= 0 || claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		c.log.Debug("access token rejected", zap.String("cause", "claims"))
		return Identity{}, ErrInvalidAccessToken
	}
	return Identity{UserID: claims.UserID, Username: claims.Username, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func rejectCause(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "algorithm"
	default:
		return "claims"
	}
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a hex
// string.  Only this digest is written to the credential store.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
