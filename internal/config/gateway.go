package config

import (
	"fmt"
	"net/url"
	"time"
)

// GatewayConfig holds the settings of the edge gateway binary.  The gateway
// only verifies access tokens, so it needs the signing secret but neither
// the database nor the refresh token index.
type GatewayConfig struct {
	Env            string
	Port           string
	UserService    *url.URL // upstream for /sys/*
	CatalogService *url.URL // upstream for /product/*, /category/*, /ai/*, /file/*
	AllowedOrigins []string
	AllowList      []string // path substrings that skip authentication
	Token          TokenConfig
	RateLimit      RateLimitConfig
	Redis          RedisConfig
	Log            LogConfig
	ProxyTimeout   time.Duration
}

// LoadGateway reads the gateway configuration.
func LoadGateway() (GatewayConfig, error) {
	secret := envStr("JWT_SECRET", "")
	if secret == "" {
		return GatewayConfig{}, fmt.Errorf("missing required env var: JWT_SECRET")
	}
	users, err := parseUpstream("USER_SERVICE_URL", "http://localhost:8081")
	if err != nil {
		return GatewayConfig{}, err
	}
	catalog, err := parseUpstream("CATALOG_SERVICE_URL", "http://localhost:8082")
	if err != nil {
		return GatewayConfig{}, err
	}
	return GatewayConfig{
		Env:            envStr("APP_ENV", "dev"),
		Port:           envStr("GATEWAY_PORT", "8080"),
		UserService:    users,
		CatalogService: catalog,
		AllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		AllowList:      envList("AUTH_ALLOW_LIST", []string{"/sys/user/login", "/sys/user/register"}),
		Token: TokenConfig{
			JWTSecret:  secret,
			AccessTTL:  time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 30)) * time.Minute,
			RefreshTTL: time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,
		},
		RateLimit:    LoadRateLimitConfig(),
		Redis:        LoadRedisConfig(),
		Log:          LoadLogConfig(),
		ProxyTimeout: envDur("PROXY_TIMEOUT", 30*time.Second),
	}, nil
}

func parseUpstream(key, def string) (*url.URL, error) {
	raw := envStr(key, def)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s %q", key, raw)
	}
	return u, nil
}
