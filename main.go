package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/amazona/backend/internal/client"
	"github.com/amazona/backend/internal/config"
	"github.com/amazona/backend/internal/db"
	"github.com/amazona/backend/internal/handler"
	"github.com/amazona/backend/internal/logger"
	"github.com/amazona/backend/internal/service"
	"github.com/amazona/backend/internal/token"
)

const shutdownTimeout = 10 * time.Second

// @title Amazona User Service API
// @version 1.0
// @description Accounts, session tokens and password reset for the Amazona storefront.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
func main() {
	// .env는 로컬 개발용 (없으면 무시)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("failed to initialize postgres", "error", err)
	}
	defer pool.Close()

	store := db.NewPostgres(pool)
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate database", "error", err)
	}

	codec, err := token.NewCodec(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("failed to create token codec", "error", err)
	}

	svc, err := service.NewUserService(store, codec, client.NewMailer(cfg.Mail, logger), logger, cfg.Auth, cfg.Admin)
	if err != nil {
		logger.Fatal("failed to create user service", "error", err)
	}
	if err := svc.EnsureAdmin(ctx); err != nil {
		logger.Fatal("failed to seed admin user", "error", err, "email", cfg.Admin.Email)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTP.Port),
		Handler:           handler.NewRouter(svc, logger, cfg.HTTP),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
	}
	if err := svc.Close(shutdownCtx); err != nil {
		logger.Error("pending mail deliveries dropped", "error", err)
	}
	logger.Info("shutdown complete")
}
