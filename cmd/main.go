package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"restock-monitor/api"
	"restock-monitor/config"
	"restock-monitor/coordinator"
	"restock-monitor/extractor"
	"restock-monitor/store"
	"restock-monitor/utils"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogger(cfg.Log)

	db, err := store.Open(cfg.Storage.DSN, logger)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}
	defer db.Close()

	browser := utils.NewBrowser(cfg.Browser, logger)
	defer browser.Close()

	ext := extractor.New(logger)
	classifier := extractor.NewClassifier(cfg.Site.ProductMarker, cfg.Site.CollectionMarker)

	openTab := coordinator.NewTabOpener(browser, ext, classifier, db, cfg, logger)

	coord, err := coordinator.New(db, ext, browser, openTab, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize coordinator: %v", err)
	}
	defer coord.Close()

	router := api.SetupRouter(cfg, api.NewHandler(coord, logger))

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Infof("Control API listening on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server shutdown: %v", err)
	}
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}

	return logger
}
