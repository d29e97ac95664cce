package main

import (
	config "github.com/NordCoder/pingerus-adhoc/internal/config/adhoc-engine"
	"github.com/NordCoder/pingerus-adhoc/internal/obs"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(cfg.AsLoggerConfig())
}
