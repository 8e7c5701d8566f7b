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

	"github.com/timmy/pagepipe/internal/api"
	"github.com/timmy/pagepipe/internal/app"
	"github.com/timmy/pagepipe/internal/config"
	"github.com/timmy/pagepipe/internal/logger"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}

	appLogger := app.NewLogger("pagepipe-api", cfg.Log)
	defer logger.Sync()

	// Background runs outlive requests but stop with the process.
	baseCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()

	application, err := app.New(baseCtx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	router := api.SetupRouter(api.RouterDeps{
		Jobs:    application.Jobs,
		DB:      application.DB,
		Server:  cfg.Server,
		WorkDir: cfg.Render.WorkDir,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// Cancelling marks pages still in flight as cancelled.
	stopRuns()
	application.Jobs.Wait()

	appLogger.Info("Server exited")
}
