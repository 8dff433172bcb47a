// Package grpcapi exposes the standard gRPC health service for the door
// controller.  The actuator service reports NOT_SERVING while the driver is
// faulted.
package grpcapi

import (
	"context"
	"fmt"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/BrandonDHaskell/Portunus/door/internal/door"
)

// ActuatorService is the health-check service name for the lock actuator.
const ActuatorService = "portunus.door.v1.Actuator"

type Dependencies struct {
	Logger *log.Logger
	Addr   string
}

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *log.Logger
	addr       string
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		logger:     d.Logger,
		addr:       d.Addr,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ActuatorService, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Observe is a door.Actuator observer that tracks the fault state.
func (s *Server) Observe(t door.Transition) {
	switch {
	case t.To == door.Fault:
		s.health.SetServingStatus(ActuatorService, healthpb.HealthCheckResponse_NOT_SERVING)
	case t.From == door.Fault:
		s.health.SetServingStatus(ActuatorService, healthpb.HealthCheckResponse_SERVING)
	}
}

// SyncState sets the actuator health from a state read at startup.
func (s *Server) SyncState(st door.State) {
	s.Observe(door.Transition{From: door.Locked, To: st})
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Printf("grpc health listening on %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

// Shutdown marks every service NOT_SERVING and drains in-flight RPCs.  If
// ctx ends first the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-stopped
	}
}
