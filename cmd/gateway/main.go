package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/config"
	"github.com/shopease/shop-ease-backend/internal/logging"
	"github.com/shopease/shop-ease-backend/internal/router"
	"github.com/shopease/shop-ease-backend/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.LoadGateway()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	codec, err := utils.NewTokenCodec(cfg.Token, utils.WithLogger(log))
	if err != nil {
		return err
	}

	var limiter redis.Scripter
	if cfg.RateLimit.Enabled {
		rdb, err := config.NewRedisClient(cfg.Redis)
		if err != nil {
			// the limiter fails open while redis is away
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
		limiter = rdb
	}

	e := router.NewGateway(cfg, codec, limiter, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("gateway listening",
			zap.String("port", cfg.Port),
			zap.String("users", cfg.UserService.String()),
			zap.String("catalog", cfg.CatalogService.String()))
		errc <- e.Start(":" + cfg.Port)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
