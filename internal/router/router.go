package router

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/handler"
	"github.com/shopease/shop-ease-backend/internal/middleware"
)

// New returns an echo instance with the middleware every binary shares:
// request ids, panic recovery and request logging, plus the JSON error
// boundary and the request validator.
func New(log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log)

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterUser mounts the user and session endpoints under /sys/user.
// Authentication is enforced by the gateway; handlers that need the caller
// re-verify the access token themselves.
func RegisterUser(e *echo.Echo, h *handler.UserHandler) {
	g := e.Group("/sys/user")
	g.POST("/login", h.Login)
	g.POST("/register", h.Register)
	g.POST("/refreshToken", h.RefreshToken)
	g.POST("/logout", h.Logout)
	g.PUT("/password", h.ChangePassword)
	g.GET("/current", h.Current)
	g.PUT("/current", h.UpdateCurrent)
}
