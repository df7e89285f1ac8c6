package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	platformgrpc "github.com/louisbranch/tenantcore/internal/platform/grpc"
	"github.com/louisbranch/tenantcore/internal/platform/timeouts"
)

const (
	defaultPort       = 8095
	healthServiceName = "tenancy.runtime"
)

// Run bootstraps the runtime, starts the projection runners and serves gRPC
// health until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	cfg = cfg.normalized()
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}

	rt, err := Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			cfg.Logf("close tenancy stores: %v", closeErr)
		}
	}()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on tenancy port %d: %w", cfg.Port, err)
	}
	return serve(ctx, rt, listener, cfg.Logf)
}

func serve(ctx context.Context, rt *Runtime, listener net.Listener, logf func(string, ...any)) error {
	grpcServer := platformgrpc.NewServer()
	healthServer := platformgrpc.RegisterHealth(grpcServer, healthServiceName)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve health: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer grpcServer.GracefulStop()
		defer healthServer.Shutdown()

		if err := rt.Start(gctx); err != nil {
			return fmt.Errorf("start projection runners: %w", err)
		}
		healthServer.Serving()
		logf("tenancy server listening at %v", listener.Addr())

		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeouts.Shutdown)
		defer cancel()
		return rt.Stop(stopCtx)
	})
	return g.Wait()
}
