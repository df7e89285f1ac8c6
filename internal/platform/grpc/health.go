// Package grpc holds the gRPC server and health helpers shared by process
// entrypoints.
package grpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer returns a gRPC server instrumented with otelgrpc.
func NewServer(opts ...gogrpc.ServerOption) *gogrpc.Server {
	opts = append([]gogrpc.ServerOption{gogrpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	return gogrpc.NewServer(opts...)
}

// Health reports the serving status of a process under the overall ("")
// service and each named service.
type Health struct {
	server   *health.Server
	services []string
}

// RegisterHealth attaches a health service to srv. Every service starts
// NOT_SERVING.
func RegisterHealth(srv *gogrpc.Server, services ...string) *Health {
	h := &Health{
		server:   health.NewServer(),
		services: append([]string{""}, services...),
	}
	grpc_health_v1.RegisterHealthServer(srv, h.server)
	h.set(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// Serving marks every service SERVING.
func (h *Health) Serving() { h.set(grpc_health_v1.HealthCheckResponse_SERVING) }

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (h *Health) Shutdown() { h.server.Shutdown() }

func (h *Health) set(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	for _, service := range h.services {
		h.server.SetServingStatus(service, status)
	}
}

// WaitForHealth blocks until service reports SERVING or the context ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	client := grpc_health_v1.NewHealthClient(conn)
	backoff := 50 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		if logf != nil {
			if err != nil {
				logf("waiting for %q health: %v", service, err)
			} else {
				logf("waiting for %q health: status %s", service, resp.GetStatus())
			}
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for %q health: %w", service, ctx.Err())
		case <-timer.C:
		}
		if backoff < time.Second {
			backoff = min(backoff*2, time.Second)
		}
	}
}
