package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/kirinyoku/busgo/docs"
	"github.com/kirinyoku/busgo/internal/app"
	"github.com/kirinyoku/busgo/internal/config"
)

// @title BusGo Inventory API
// @version 1.0
// @description Seat inventory for intercity bus journeys.
// @host localhost:8081
// @BasePath /
func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With(slog.String("service", "inventory"))
	slog.SetDefault(logger)

	application, err := app.New(context.Background(), cfg, logger, app.RoleInventory)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		logger.Error("application finished with error", "error", err)
		os.Exit(1)
	}
}
