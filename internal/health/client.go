package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mehtapradnyatama/appsampah/internal/logging"
)

// Probe dials addr and asks for the status of service. Extra dial options
// are appended after the insecure transport credentials.
func Probe(ctx context.Context, addr, service string, logger *zap.Logger, opts ...grpc.DialOption) (healthpb.HealthCheckResponse_ServingStatus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)
	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("health.dial", "", err)
		logger.Error("failed to dial health endpoint", zap.Error(wrapped), zap.String("addr", addr))
		return healthpb.HealthCheckResponse_UNKNOWN, wrapped
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		wrapped := logging.NewOperationError("health.check", "", err)
		logger.Error("health check failed", zap.Error(wrapped), zap.String("service", service))
		return healthpb.HealthCheckResponse_UNKNOWN, wrapped
	}
	return resp.GetStatus(), nil
}
