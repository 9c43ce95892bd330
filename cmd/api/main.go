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

	"github.com/timmy/vismatch/internal/api"
	"github.com/timmy/vismatch/internal/api/middleware"
	"github.com/timmy/vismatch/internal/bootstrap"
	"github.com/timmy/vismatch/internal/config"
	"github.com/timmy/vismatch/internal/logger"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := bootstrap.Build(initCtx, cfg)
	cancelInit()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize services")
	}
	defer app.Close()

	router := api.SetupRouter(&api.Services{
		Match:    app.Match,
		Catalog:  app.Catalog,
		History:  app.History,
		Strategy: app.Extractor.Name(),
	}, &api.RouterConfig{
		Mode:        cfg.Server.Mode,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		JWTSecret:   cfg.Auth.JWTSecret,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
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

	// in-flight matches are bounded by the match timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Match.Timeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	appLogger.Info("Server exited")
}
