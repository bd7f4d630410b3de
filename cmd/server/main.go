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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shopease/shop-ease-backend/internal/config"
	"github.com/shopease/shop-ease-backend/internal/database"
	"github.com/shopease/shop-ease-backend/internal/handler"
	"github.com/shopease/shop-ease-backend/internal/logging"
	"github.com/shopease/shop-ease-backend/internal/queue"
	"github.com/shopease/shop-ease-backend/internal/repository"
	"github.com/shopease/shop-ease-backend/internal/router"
	"github.com/shopease/shop-ease-backend/internal/service"
	"github.com/shopease/shop-ease-backend/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load() // .env is optional outside local development

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		// go-redis reconnects on its own; logins fail until it does.
		log.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer rdb.Close()

	codec, err := utils.NewTokenCodec(cfg.Token, utils.WithLogger(log))
	if err != nil {
		return err
	}

	var opts []service.ManagerOption
	if cfg.Events.Enabled {
		pub := queue.NewPublisher(cfg.Events, log)
		defer func() { _ = pub.Close() }()
		opts = append(opts, service.WithEvents(pub))
	}

	users := repository.NewUserRepo(db)
	sessions := service.NewSessionManager(users, repository.NewRedisCredentialStore(rdb), codec, cfg.Session, log, opts...)
	accounts := service.NewUserService(users, sessions, cfg.BcryptCost, log)

	e := router.New(log)
	router.RegisterRoutes(e)
	router.RegisterUser(e, handler.NewUserHandler(sessions, accounts, codec))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("user service listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Events.Enabled && cfg.Events.ConsumerEnabled {
		audit := logging.NewAudit(cfg.Log)
		defer func() { _ = audit.Sync() }()
		g.Go(func() error {
			err := queue.StartAuditConsumer(gctx, cfg.Events, audit, log)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
