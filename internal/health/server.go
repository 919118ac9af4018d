// Package health exposes the classifier state over the standard gRPC health
// protocol (grpc.health.v1.Health).
package health

import (
	"errors"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ClassifierService is the service name whose status tracks the model.
const ClassifierService = "classifier"

// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc   *grpc.Server
	health *grpchealth.Server
	logger *zap.Logger
}

// NewServer registers the health service. The overall status is SERVING;
// ClassifierService is SERVING only when modelLoaded is true.
func NewServer(modelLoaded bool, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		grpc:   grpc.NewServer(),
		health: grpchealth.NewServer(),
		logger: logger.Named("grpc_health"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.SetModelLoaded(modelLoaded)
	return s
}

// SetModelLoaded updates the ClassifierService status.
func (s *Server) SetModelLoaded(loaded bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if loaded {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ClassifierService, status)
}

// Serve blocks until Stop is called. A clean stop returns nil.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
