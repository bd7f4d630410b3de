package router

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/config"
	"github.com/shopease/shop-ease-backend/internal/middleware"
)

// NewGateway builds the edge gateway.  Every proxied route passes CORS,
// then the edge authenticator, then the rate limiter.  Operational
// endpoints are served locally without authentication.
func NewGateway(cfg config.GatewayConfig, verifier middleware.AccessVerifier, limiter redis.Scripter, log *zap.Logger) *echo.Echo {
	e := New(log)
	e.Use(middleware.CORS(cfg.AllowedOrigins))
	RegisterRoutes(e)

	guard := []echo.MiddlewareFunc{
		middleware.EdgeAuth(verifier, middleware.EdgeAuthConfig{AllowList: cfg.AllowList, Log: log}),
		middleware.NewTokenBucket(cfg.RateLimit, limiter, verifier, log),
	}
	routes := []struct {
		prefix string
		target *url.URL
	}{
		{"/sys", cfg.UserService},
		{"/product", cfg.CatalogService},
		{"/category", cfg.CatalogService},
		{"/ai", cfg.CatalogService},
		{"/file", cfg.CatalogService},
	}
	for _, r := range routes {
		mws := append(append([]echo.MiddlewareFunc{}, guard...), proxy(r.target, cfg.ProxyTimeout))
		e.Group(r.prefix, mws...)
		log.Debug("gateway route", zap.String("prefix", r.prefix), zap.String("upstream", r.target.String()))
	}
	return e
}

func proxy(target *url.URL, timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return echomw.ProxyWithConfig(echomw.ProxyConfig{
		Balancer: echomw.NewRoundRobinBalancer([]*echomw.ProxyTarget{{URL: target}}),
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	})
}
