package httpapi

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthServiceName = "tic-auth"

// GRPCServer exposes the standard gRPC health service for load balancers
// that probe over gRPC. It watches the same readiness source as /readyz.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	ready  ReadinessChecker
	stop   chan struct{}
}

func NewGRPCServer(ready ReadinessChecker) *GRPCServer {
	s := &GRPCServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		ready:  ready,
		stop:   make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	return s
}

// Serve blocks on the listener. Readiness is re-evaluated periodically and
// pushed into the health service so watchers see transitions.
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.refresh()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.refresh()
			case <-s.stop:
				return
			}
		}
	}()
	return s.server.Serve(lis)
}

func (s *GRPCServer) refresh() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.ready.Check(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(healthServiceName, status)
	s.health.SetServingStatus("", status)
}

// GracefulStop drains in-flight RPCs and stops the readiness loop.
func (s *GRPCServer) GracefulStop() {
	close(s.stop)
	s.health.Shutdown()
	s.server.GracefulStop()
}
