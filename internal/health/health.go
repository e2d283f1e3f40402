// Package health turns persistence failures into a degraded signal served
// over gRPC and HTTP.
package health

import (
	"context"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"support-dashboard/internal/logger"
	"support-dashboard/internal/observability"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "support-dashboard"

// Checker is a log whose last persistence error decides health.
type Checker interface {
	Name() string
	Err() error
}

// Monitor polls checkers and mirrors the result into a gRPC health server.
type Monitor struct {
	checks []Checker
	server *grpchealth.Server

	mu      sync.Mutex
	serving bool
}

func NewMonitor(checks ...Checker) *Monitor {
	m := &Monitor{checks: checks, server: grpchealth.NewServer()}
	m.Refresh()
	return m
}

// Status reports whether every checker is healthy, with a per-check summary.
func (m *Monitor) Status() (bool, map[string]string) {
	ok := true
	details := make(map[string]string, len(m.checks))
	for _, check := range m.checks {
		if err := check.Err(); err != nil {
			ok = false
			details[check.Name()] = err.Error()
			continue
		}
		details[check.Name()] = "ok"
	}
	return ok, details
}

// Refresh recomputes status and updates the gRPC health server on change.
func (m *Monitor) Refresh() bool {
	ok, details := m.Status()

	m.mu.Lock()
	defer m.mu.Unlock()
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	if ok != m.serving {
		if ok {
			logger.Info().Msg("persistence healthy")
		} else {
			logger.Error().Interface("checks", details).Msg("persistence degraded")
		}
	}
	m.serving = ok
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(ServiceName, status)
	return ok
}

// Run refreshes on every tick until ctx ends.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			return
		case <-ticker.C:
			m.Refresh()
		}
	}
}

// NewGRPCServer builds a gRPC server exposing grpc.health.v1.Health.
func NewGRPCServer(m *Monitor) *grpc.Server {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	healthpb.RegisterHealthServer(server, m.server)
	return server
}

// Serve listens on addr until the server is stopped.
func Serve(server *grpc.Server, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health listening")
	return server.Serve(lis)
}
