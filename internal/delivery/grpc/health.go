// Package grpc exposes broker connectivity through the standard gRPC
// health service.
package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/pkg/logger"
)

// ServiceName is the health service name probes should ask for. The empty
// name reports the same status.
const ServiceName = "jstail.Worker"

// HealthHandler mirrors connectivity events into a health server.
type HealthHandler struct {
	server *health.Server
	logger *logger.Logger
}

// NewHealthHandler creates a handler that reports NOT_SERVING until the
// first successful connection.
func NewHealthHandler(log *logger.Logger) *HealthHandler {
	h := &HealthHandler{
		server: health.NewServer(),
		logger: log.Named("health"),
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register adds the health service and reflection to s.
func (h *HealthHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
	reflection.Register(s)
}

// Deliver implements router.Sink
func (h *HealthHandler) Deliver(ev entity.Event) {
	c, ok := ev.(entity.ConnectivityChangedEvent)
	if !ok || c.Status == entity.StatusError {
		return
	}
	if c.Status.Healthy() {
		h.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

func (h *HealthHandler) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
	h.logger.Debug("Health status changed", logger.String("status", status.String()))
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *HealthHandler) Shutdown() {
	h.server.Shutdown()
}
