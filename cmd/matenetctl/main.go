package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"

	"github.com/matenet/backend/internal/ctl"
	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server"
	"github.com/matenet/backend/internal/server/config"
)

func openUsers(ctx context.Context) (ctl.PasswordSetter, func(), error) {
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg, logging.NewJSONLogger(io.Discard, cfg.LogLevel))
	if err != nil {
		return nil, nil, err
	}
	return app.Users(), app.Close, nil
}

func main() {

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("dotenv: %v", err)
	}

	if err := ctl.Run(context.Background(), os.Args[1:], os.Stdout, openUsers); err != nil {
		if errors.Is(err, ctl.ErrUsage) {
			log.Println(err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}
}
