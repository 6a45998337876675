package config

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/matenet/backend/internal/flagx"
	"github.com/sethvargo/go-envconfig"
)

var osLookuper = envconfig.OsLookuper()

// LoadDotEnv loads variables from the file given by -env-file, or from
// ./.env when present. Variables already in the environment win.
func LoadDotEnv() error {
	if path := flagx.DotEnvFlags(); path != "" {
		return godotenv.Load(path)
	}
	// a missing default file is fine
	_ = godotenv.Load()
	return nil
}

// parseEnv overlays environment variables onto config. Unset variables
// leave the current value untouched. It panics on malformed values.
func parseEnv(config *Config, l envconfig.Lookuper) {
	if err := envconfig.ProcessWith(context.Background(), config, l); err != nil {
		panic(err)
	}
}
