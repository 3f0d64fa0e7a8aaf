package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anime-shed/meter-reader-go/internal/config"
	"github.com/anime-shed/meter-reader-go/internal/container"
	"github.com/anime-shed/meter-reader-go/internal/logger"
	"github.com/anime-shed/meter-reader-go/internal/recognizer/tesseract"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).Warn("Failed to load .env file")
	}
	logger.SetLevel(os.Getenv("LOG_LEVEL"))

	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := tesseract.New(tesseract.Options{
		Language:  cfg.OCRLanguage,
		Whitelist: cfg.OCRWhitelist,
		Timeout:   cfg.RecognizerTimeout,
	})
	if err := engine.Init(ctx); err != nil {
		// captures report recognizer_unavailable until tesseract is installed
		logger.WithError(err).Warn("Recognizer not ready")
	}

	// Initialize dependency injection container
	c, err := container.NewContainer(ctx, cfg, engine)
	if err != nil {
		engine.Close()
		logger.WithError(err).Fatal("Failed to initialize container")
	}

	go c.Hub().Run(ctx)

	if cfg.AutoCapture {
		if err := c.Monitor().Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start quality monitor")
		}
	}

	// Create HTTP server with configurable timeouts. Writes are bounded
	// per route because ?wait=true captures outlive REQUEST_TIMEOUT.
	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           c.Handler(),
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"address": cfg.ServerAddress(),
			"timeout": cfg.RequestTimeout,
			"store":   cfg.StoreBackend,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := c.Close(); err != nil {
		logger.WithError(err).Error("Failed to release resources")
	}

	logger.Logger.Info("Server exited")
}
