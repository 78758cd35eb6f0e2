package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	kart "github.com/xenking/kart-orders/internal/app"
)

func main() {
	app.Run(run)
}

// run loads the configuration and serves the API until ctx is canceled.
func run(ctx context.Context, lg *zap.Logger, t *app.Telemetry) error {
	cfg, err := kart.LoadConfig()
	if err != nil {
		return errors.Wrap(err, "config")
	}
	lg.Info("Configuration loaded",
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("bootstrap_api_key", cfg.BootstrapAPIKey != ""),
	)
	return kart.Run(ctx, lg, t, cfg)
}
