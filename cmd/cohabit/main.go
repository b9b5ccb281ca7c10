package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/cohabit/internal/config"
	"github.com/dukerupert/cohabit/internal/database"
	"github.com/dukerupert/cohabit/internal/logging"
	"github.com/dukerupert/cohabit/internal/server"
)

func main() {
	cfg, err := config.Load(os.Getenv("COHABIT_CONFIG"), os.Getenv)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("failed to reach redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		logger.Info("progress stored in redis", "addr", cfg.Redis.Addr)
	}

	srv := server.New(cfg, db, rdb, logger)

	maintenance, err := srv.StartMaintenance(logger.With("component", "maintenance"))
	if err != nil {
		logger.Error("failed to schedule maintenance", "error", err)
		os.Exit(1)
	}

	// Conversion can take up to the Gotenberg timeout, so writes get headroom.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Gotenberg.Timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("cohabit starting",
			"addr", httpServer.Addr,
			"base_url", cfg.BaseURL,
			"gotenberg", cfg.Gotenberg.URL,
			"converter_fallback", cfg.Gotenberg.Fallback,
			"archive", cfg.Archive.Enabled(),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	<-maintenance.Stop().Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
