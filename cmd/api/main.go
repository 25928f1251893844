package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/octobees/supplier-outreach/internal/config"
	"github.com/octobees/supplier-outreach/internal/logger"
	middlewarepkg "github.com/octobees/supplier-outreach/internal/middleware"
	"github.com/octobees/supplier-outreach/internal/router"
	"github.com/octobees/supplier-outreach/internal/settings"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Default().WithError(err).Fatal("failed to load config")
	}

	log := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
	logger.SetDefault(log)
	defer func() { _ = logger.Sync() }()

	outreach, err := settings.Load(cfg.SettingsFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load outreach settings")
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app, err := build(startCtx, cfg, outreach)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize application")
	}
	defer app.close()

	if err := app.queue.Start(context.Background()); err != nil {
		log.WithError(err).Fatal("failed to start dispatch queue")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middlewarepkg.RequestID())
	e.Use(middlewarepkg.Logging())
	e.Use(middlewarepkg.Metrics(app.metrics))
	e.Use(echoMiddleware.Recover())

	router.Register(e, cfg, app.jwt, app.handlers)

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		serverErr <- e.Start(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server error")
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}
