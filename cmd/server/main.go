package main

import (
	"context"
	"log"
	"os"

	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server"
	"github.com/matenet/backend/internal/server/config"
)

func main() {

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("dotenv: %v", err)
	}

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevel)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "app failed", "error", err)
		os.Exit(1)
	}
}
