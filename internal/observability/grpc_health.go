package observability

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes the standard grpc.health.v1 service so that
// orchestrators can probe the gateway without speaking HTTP.
type GRPCHealthServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	checks   map[string]HealthCheckFunc
}

// NewGRPCHealthServer creates a health server listening on addr
func NewGRPCHealthServer(addr string, checks map[string]HealthCheckFunc) (*GRPCHealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	// Not serving until the first probe passes
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &GRPCHealthServer{
		server:   srv,
		health:   hs,
		listener: lis,
		checks:   checks,
	}, nil
}

// Addr returns the address the server listens on
func (g *GRPCHealthServer) Addr() net.Addr {
	return g.listener.Addr()
}

// Serve blocks serving health probes until Stop is called
func (g *GRPCHealthServer) Serve() error {
	if err := g.server.Serve(g.listener); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Watch re-runs the readiness checks every interval and publishes the result
// as the serving status. It returns when ctx is done.
func (g *GRPCHealthServer) Watch(ctx context.Context, interval time.Duration) {
	g.refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refresh(ctx)
		}
	}
}

func (g *GRPCHealthServer) refresh(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, healthy := RunChecks(checkCtx, g.checks)
	g.SetServing(healthy)
}

// SetServing sets the overall serving status
func (g *GRPCHealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Stop marks the service as not serving and stops the server
func (g *GRPCHealthServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
