package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/louieee/chatclone/internal/server"
	"github.com/louieee/chatclone/internal/store"
	"github.com/louieee/chatclone/pkg/config"
	"github.com/louieee/chatclone/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelDebug)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		logger.Error("Failed to open store", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := server.NewApp(logger, ctx, cfg, st)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
