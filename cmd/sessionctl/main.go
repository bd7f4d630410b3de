// Command sessionctl lists and revokes refresh token sessions directly in
// the session index.  It needs Redis only; no database or signing key.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/config"
	"github.com/shopease/shop-ease-backend/internal/logging"
	"github.com/shopease/shop-ease-backend/internal/queue"
	"github.com/shopease/shop-ease-backend/internal/repository"
	"github.com/shopease/shop-ease-backend/internal/service"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(openSessions).Execute(); err != nil {
		os.Exit(1)
	}
}

// openSessions builds a SessionManager from the environment.  The manager
// never logs users in here, so it runs without a directory or token codec.
func openSessions() (*service.SessionManager, func(), error) {
	logCfg := config.LoadLogConfig()
	logCfg.File = ""
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, err
	}

	sessCfg := config.LoadSessionConfig()
	if sessCfg.RefreshTTL <= 0 {
		return nil, nil, fmt.Errorf("REFRESH_TOKEN_TTL_DAYS must be positive")
	}

	rdb, err := config.NewRedisClient(config.LoadRedisConfig())
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}

	var opts []service.ManagerOption
	cleanup := func() {
		_ = rdb.Close()
		_ = log.Sync()
	}
	if events := config.LoadEventsConfig(); events.Enabled {
		pub := queue.NewPublisher(events, log)
		opts = append(opts, service.WithEvents(pub))
		cleanup = func() {
			_ = pub.Close()
			_ = rdb.Close()
			_ = log.Sync()
		}
	}

	m := service.NewSessionManager(nil, repository.NewRedisCredentialStore(rdb), nil,
		sessCfg, log.With(zap.String("component", "sessionctl")), opts...)
	return m, cleanup, nil
}
