package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/shopease/shop-ease-backend/internal/utils"
)

// AccessVerifier checks an access token.  *utils.TokenCodec implements it.
type AccessVerifier interface {
	VerifyAccess(token string) (utils.Identity, error)
}

const bearerPrefix = "bearer "

// BearerToken strips an optional case-insensitive "Bearer " prefix from an
// Authorization header value and trims surrounding whitespace.
func BearerToken(header string) string {
	h := strings.TrimSpace(header)
	if len(h) >= len(bearerPrefix) && strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		h = h[len(bearerPrefix):]
	}
	return strings.TrimSpace(h)
}

// IdentityFrom re-derives the caller's identity from the request's
// Authorization header.  The edge does not forward identity, so every
// service that needs it verifies the same token again.
func IdentityFrom(c echo.Context, v AccessVerifier) (utils.Identity, error) {
	tok := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if tok == "" {
		return utils.Identity{}, utils.ErrInvalidAccessToken
	}
	return v.VerifyAccess(tok)
}
