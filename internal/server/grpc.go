package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"CoverLedger/internal/core"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/persistence"
	"CoverLedger/internal/query"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GRPCServer wraps the gRPC server and the gRPC-Gateway HTTP mux.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	healthChecker *observability.HealthChecker
	logger        zerolog.Logger
}

// ServerDeps holds all dependencies needed by the gRPC services.
// DB, QueryService, SnapshotMgr and Snapshotter are optional; without them
// the Admin service is not registered.
type ServerDeps struct {
	Core          *core.DeterministicCore
	DB            *sql.DB
	QueryService  *query.QueryService
	SnapshotMgr   *persistence.SnapshotManager
	Snapshotter   *persistence.Snapshotter
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

func (d *ServerDeps) hasAdmin() bool {
	return d.DB != nil && d.QueryService != nil && d.SnapshotMgr != nil && d.Snapshotter != nil
}

// NewGRPCServer creates a new gRPC server with all services registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryInterceptor(deps.Metrics, deps.Logger)),
	)

	grpcServer.RegisterService(&LedgerServiceDesc, NewLedgerService(deps.Core))
	if deps.hasAdmin() {
		grpcServer.RegisterService(&AdminServiceDesc, NewAdminService(
			deps.DB, deps.Core, deps.QueryService, deps.SnapshotMgr, deps.Snapshotter,
		))
	}

	// Health check
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(LedgerServiceName, healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: deps.HealthChecker,
		logger:        deps.Logger,
	}
}

// Server exposes the underlying gRPC server (tests serve it on bufconn).
func (s *GRPCServer) Server() *grpc.Server {
	return s.grpcServer
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON gateway (blocking). Requests are
// proxied to the gRPC server over a loopback client connection.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	conn, err := grpc.NewClient(s.grpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return fmt.Errorf("gateway dial: %w", err)
	}
	defer conn.Close()

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		s.healthChecker.Register(httpMux)
	}
	gw, err := NewGateway(conn)
	if err != nil {
		return fmt.Errorf("register gateway: %w", err)
	}
	httpMux.Handle("/", gw)

	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           httpMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Str("grpc", s.grpcAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// UnaryInterceptor records per-method request metrics and logs failures.
// Domain rejections log at info; internal errors at error.
func UnaryInterceptor(metrics *observability.Metrics, logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		if metrics != nil {
			metrics.RequestsTotal.WithLabelValues(info.FullMethod, code.String()).Inc()
			metrics.RequestDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		}

		if err != nil {
			ev := logger.Info()
			if code == codes.Internal {
				ev = logger.Error()
			}
			ev.Str("method", info.FullMethod).
				Str("principal", string(principalFrom(ctx))).
				Str("code", code.String()).
				Err(err).
				Msg("rpc failed")
		}
		return resp, err
	}
}
