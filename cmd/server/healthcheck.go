package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiqai/loopback-gateway/internal/observability"
	"github.com/lexiqai/loopback-gateway/internal/resilience"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// probeHealth asks the gRPC health service at addr whether the gateway is
// serving. It backs the "healthcheck" subcommand used by container probes.
func probeHealth(ctx context.Context, addr string, retry *resilience.RetryConfig) (bool, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return false, fmt.Errorf("failed to create health client for %s: %w", addr, err)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)

	var resp *healthpb.HealthCheckResponse
	err = resilience.Retry(ctx, func() error {
		var callErr error
		resp, callErr = client.Check(ctx, &healthpb.HealthCheckRequest{Service: observability.ServiceName})
		return callErr
	}, retry, isRetryableProbeError)
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}

	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func isRetryableProbeError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	}
	return false
}
