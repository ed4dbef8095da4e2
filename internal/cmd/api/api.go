// Package api parses API command flags and launches the mentorship HTTP
// service.
package api

import (
	"context"
	"flag"
	"log"

	"github.com/ascentlabs/ascentledger/internal/platform/config"
	"github.com/ascentlabs/ascentledger/internal/platform/otel"
	server "github.com/ascentlabs/ascentledger/internal/services/mentorship/app"
)

// Config holds API command configuration.
type Config struct {
	Port int `env:"ASCENT_LEDGER_API_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The mentorship HTTP server port")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the mentorship service with tracing configured from env.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "ascent-ledger-api")
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	return server.Run(ctx, cfg.Port)
}
