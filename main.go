package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coinwatch/crypto-ingestor-go/coinmarket"
	"github.com/coinwatch/crypto-ingestor-go/config"
	"github.com/coinwatch/crypto-ingestor-go/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Debug)

	if cfg.APIKey == "" {
		logger.Error("COINMARKETCAP_API_KEY environment variable not set, exiting")
		os.Exit(1)
	}

	client := coinmarket.NewClient(cfg.APIKey)
	job := handlers.NewCollectionJob(cfg, client, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/", job.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("starting HTTP server", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil {
		logger.Error("HTTP server stopped", "error", err)
		os.Exit(1)
	}
}

func setupLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
