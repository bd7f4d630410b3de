package config

// This file defines the Redis settings and client constructor.  Redis holds
// the refresh token index of the user service and the rate limit buckets of
// the gateway.

import (
	"context"
	"crypto/tls"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is read from the environment by LoadRedisConfig.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
	PoolSize int
}

// LoadRedisConfig reads the Redis variables.  Supported variables are:
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand (host/port take precedence when both are set)
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS when "true" or "1"
//	REDIS_POOL_SIZE – connection pool size (default 0, go-redis default)
func LoadRedisConfig() RedisConfig {
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	addr := os.Getenv("REDIS_ADDR")
	if host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	tlsEnv := os.Getenv("REDIS_TLS")
	return RedisConfig{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
		TLS:      strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
		PoolSize: envInt("REDIS_POOL_SIZE", 0),
	}
}

// NewRedisClient builds a client from cfg and pings the server with a short
// timeout.  The client is always returned; a non-nil error only reports that
// the server was unreachable at startup, and callers decide whether to
// degrade or to continue and let go-redis reconnect.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
		PoolSize:  cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return client, err
	}
	return client, nil
}
