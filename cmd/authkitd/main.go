package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	authkit "github.com/halcyon-auth/authkit"
	"github.com/halcyon-auth/authkit/account/sqlite"
	"github.com/halcyon-auth/authkit/httpapi"
	"github.com/halcyon-auth/authkit/mailer"
)

func main() {
	if err := run(); err != nil {
		zap.NewExample().Fatal("authkitd exited", zap.Error(err))
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := buildLogger(cfg.Environment)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return err
	}

	accounts, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer func() { _ = accounts.Close() }()

	engine, err := authkit.New().
		WithConfig(engineCfg).
		WithRedis(redisClient).
		WithAccountStore(accounts).
		WithMailer(mailer.NewLogMailer(log)).
		WithLogger(log).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	router := httpapi.NewRouter(engine, log, httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		SecureCookies:  cfg.SecureCookies,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", cfg.Addr),
			zap.String("environment", cfg.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", zap.Duration("grace", cfg.ShutdownGrace))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
