package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/awards/internal/bootstrap"
	"github.com/cassiomorais/awards/internal/controller"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "awards-api", "awards")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	router := controller.NewRouter(controller.RouterDeps{
		Pool:           app.Pool,
		RedisClient:    app.Redis,
		Settlement:     app.Settlement,
		Ledger:         app.Ledger,
		Votes:          app.VoteStore,
		Reconciler:     app.Reconciler,
		Authz:          app.Authz,
		Providers:      app.Providers,
		Breakers:       app.Providers,
		Users:          app.Catalog,
		Idempotency:    app.Idempotency,
		Metrics:        app.Metrics,
		Server:         app.Config.Server,
		Auth:           app.Config.Auth,
		IdempotencyTTL: app.Config.Worker.IdempotencyTTL,
	})

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
