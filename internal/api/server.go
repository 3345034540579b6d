package api

import (
	"context"
	"fmt"
	"net"

	"fixit/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// GRPCServer hosts the notification service on its own listener.
type GRPCServer struct {
	server   *grpc.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg *config.APIConfig, svc NotificationServer, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return newGRPCServer(cfg, lis, svc, logger), nil
}

func newGRPCServer(cfg *config.APIConfig, lis net.Listener, svc NotificationServer, logger *zerolog.Logger) *GRPCServer {
	auth := NewAuthInterceptor(cfg)
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(ChainUnaryInterceptors(LoggingUnaryInterceptor(logger), auth.Unary())),
		grpc.StreamInterceptor(ChainStreamInterceptors(LoggingStreamInterceptor(logger), auth.Stream())),
	}
	if cfg.GRPC.Keepalive > 0 {
		// Subscriptions idle for long stretches; pings keep proxies from cutting them.
		opts = append(opts,
			grpc.KeepaliveParams(keepalive.ServerParameters{Time: cfg.GRPC.Keepalive, Timeout: cfg.GRPC.Keepalive / 3}),
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: cfg.GRPC.Keepalive / 2, PermitWithoutStream: true}),
		)
	}
	if cfg.GRPC.MaxStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(cfg.GRPC.MaxStreams))
	}

	srv := grpc.NewServer(opts...)
	srv.RegisterService(&NotificationServiceDesc, svc)

	return &GRPCServer{server: srv, listener: lis, log: grpcLogger(logger)}
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

// Shutdown drains in-flight calls until ctx expires, then closes what is left.
// Open subscriptions end only once their router channels close.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC graceful shutdown timed out; forcing stop")
		s.server.Stop()
		<-done
	}
}
