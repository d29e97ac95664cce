package main

import (
	"net/http"
	"time"

	config "github.com/NordCoder/pingerus-adhoc/internal/config/adhoc-engine"
	apiadhoc "github.com/NordCoder/pingerus-adhoc/internal/services/api-gateway/adhoc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, eng apiadhoc.Engine) *http.Server {
	api := apiadhoc.NewServer(eng, apiadhoc.Opts{
		Logger:          logger,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		APIKeys:         cfg.Server.APIKeys,
		DefaultDeadline: cfg.Engine.DefaultDeadline,
	})

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           otelhttp.NewHandler(api.Router(), "adhoc.http"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}
