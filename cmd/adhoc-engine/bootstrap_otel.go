package main

import (
	"context"

	config "github.com/NordCoder/pingerus-adhoc/internal/config/adhoc-engine"
	"github.com/NordCoder/pingerus-adhoc/internal/obs"
	"go.uber.org/zap"
)

func initOTel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (func(context.Context) error, error) {
	closer, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enable {
		logger.Info("otel enabled", zap.String("endpoint", cfg.OTEL.OTLPEndpoint))
	}
	return func(ctx context.Context) error { return closer.Shutdown(ctx) }, nil
}
