// Command identityd serves the identity API: registration, login, bearer
// tokens and role-gated user management.
//
// @title                       Identity API
// @version                     1.0
// @description                 User registration, login, bearer tokens and role-based access control.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the token.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/99minutos/identity-system/internal/api"
	"github.com/99minutos/identity-system/internal/core/ports"
	"github.com/99minutos/identity-system/internal/core/service"
	"github.com/99minutos/identity-system/internal/infrastructure/config"
	"github.com/99minutos/identity-system/internal/infrastructure/queue"
	"github.com/99minutos/identity-system/internal/infrastructure/security"
	"github.com/99minutos/identity-system/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "identityd",
	})

	store, closeStore, err := openStore(ctx, cfg, logger.Component("store"))
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := closeStore(context.Background()); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	bcryptHasher, err := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	// The pool outlives ctx so requests drained during shutdown can still hash.
	poolCtx, stopPool := context.WithCancel(context.Background())
	defer stopPool()
	hasher := queue.NewHashPool(cfg.Auth.HashWorkers, bcryptHasher, logger.Component("hash"))
	hasher.Start(poolCtx)
	tokens, err := security.NewJWTService([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}

	e := api.NewRouter(api.Deps{
		Auth:      service.NewAuthService(store, hasher, tokens, cfg.Auth.TokenTTL, logger.Component("auth")),
		Users:     service.NewUserService(store, hasher, logger.Component("users")),
		Readiness: map[string]ports.Pinger{cfg.Store.Driver: store},
		Log:       logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.Store.Driver).
			Dur("token_ttl", cfg.Auth.TokenTTL).
			Msg("identity API listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
