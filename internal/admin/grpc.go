// Package admin implements the runtime's operable surface: a gRPC
// health/reflection server, an HTTP stats endpoint with a websocket
// monitor stream, and an optional terminal dashboard. None of it sits on
// the dispatch hot path.
package admin

import (
	"context"
	"log/slog"
	"net"

	recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	loggingmw "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
)

// GRPCServer wraps a *grpc.Server exposing only health and reflection.
// There is no domain-specific RPC service here, just the hooks a
// deployment's liveness and readiness probes attach to.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
}

// NewGRPCServer builds a server wrapped with recovery and request-logging
// interceptors, with the standard health service already serving.
func NewGRPCServer(log *slog.Logger) *GRPCServer {
	logger := loggingmw.LoggerFunc(func(ctx context.Context, lvl loggingmw.Level, msg string, fields ...any) {
		log.Log(ctx, slog.Level(lvl), msg, fields...)
	})

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggingmw.UnaryServerInterceptor(logger),
			recovery.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			loggingmw.StreamServerInterceptor(logger),
			recovery.StreamServerInterceptor(),
		),
	)

	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	reflection.Register(srv)
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &GRPCServer{srv: srv, health: h}
}

// Serve blocks accepting connections on lis until the server is stopped.
func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

// Stop gracefully drains in-flight RPCs and marks the service not
// serving beforehand so load balancers stop routing new ones.
func (s *GRPCServer) Stop() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.srv.GracefulStop()
}
