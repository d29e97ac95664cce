package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/pingerus-adhoc/internal/config/adhoc-engine"
	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
	"github.com/NordCoder/pingerus-adhoc/internal/obs"
	engine "github.com/NordCoder/pingerus-adhoc/internal/services/adhoc"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfgPath := flag.String("config", "../config/adhoc-engine.yaml", "path to config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting adhoc-engine", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	otelShutdown, err := initOTel(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	d, err := initDeps(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("init deps", zap.Error(err))
	}
	defer d.close(logger)

	eng := engine.New(logger, cfg.Engine.AsEngineConfig(), engine.Deps{
		Dispatch:   d.dispatch,
		Logs:       d.logs,
		Probes:     d.probes,
		Capability: domain.StaticCapability(cfg.Logs.CanRead),
		Clock:      domain.SystemClock{},
		Registerer: prometheus.DefaultRegisterer,
	})

	metricsSrv := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, d.health, logger)

	grpcServer, healthSrv, grpcLn, err := buildGRPCServer(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("build grpc", zap.Error(err))
	}
	grpcErrCh := make(chan error, 1)
	go func() { grpcErrCh <- serveGRPC(grpcServer, grpcLn, cfg, logger) }()

	httpSrv := buildHTTPServer(cfg, logger, eng)
	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, cfg, logger) }()

	engCtx, engCancel := context.WithCancel(rootCtx)
	defer engCancel()
	engErrCh := make(chan error, 1)
	go func() { engErrCh <- eng.Run(engCtx) }()
	healthSrv.SetServingStatus(engineService, healthpb.HealthCheckResponse_SERVING)

	var (
		runErr     error
		engStopped bool
	)
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case runErr = <-engErrCh:
		engStopped = true
		logger.Error("engine stopped", zap.Error(runErr))
	case runErr = <-grpcErrCh:
		if runErr != nil {
			logger.Error("grpc serve", zap.Error(runErr))
		}
	case runErr = <-httpErrCh:
		if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	healthSrv.SetServingStatus(engineService, healthpb.HealthCheckResponse_NOT_SERVING)
	_ = httpSrv.Shutdown(shCtx)
	engCancel()
	if !engStopped {
		select {
		case <-engErrCh:
		case <-shCtx.Done():
			logger.Warn("engine did not stop in time")
		}
	}
	gracefulStopGRPC(grpcServer, healthSrv)
	_ = metricsSrv.Shutdown(shCtx)

	time.Sleep(100 * time.Millisecond)
	logger.Info("bye")
}
