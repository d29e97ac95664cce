package main

import (
	"net"

	config "github.com/NordCoder/pingerus-adhoc/internal/config/adhoc-engine"
	"github.com/NordCoder/pingerus-adhoc/internal/obs"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const engineService = "pingerus.adhoc.Engine"

// buildGRPCServer serves health and reflection only; the engine API is HTTP.
func buildGRPCServer(cfg *config.Config, reg prometheus.Registerer) (*grpc.Server, *health.Server, net.Listener, error) {
	grpcMetrics := grpcprometheus.NewServerMetrics()

	opts := obs.GRPCServerOpts()
	opts = append(opts,
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	grpcServer := grpc.NewServer(opts...)

	hs := health.NewServer()
	hs.SetServingStatus(engineService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	grpcMetrics.InitializeMetrics(grpcServer)
	if err := reg.Register(grpcMetrics); err != nil {
		return nil, nil, nil, err
	}

	ln, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	return grpcServer, hs, ln, nil
}

func serveGRPC(s *grpc.Server, ln net.Listener, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr))
	return s.Serve(ln)
}

func gracefulStopGRPC(s *grpc.Server, hs *health.Server) {
	hs.Shutdown()
	s.GracefulStop()
}
