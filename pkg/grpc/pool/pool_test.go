package pool

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startHealthServer serves the health service on a loopback port.
func startHealthServer(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, health.NewServer())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

// deadAddr returns a loopback address nothing listens on.
func deadAddr(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func fastOptions(endpoints ...string) EndpointOptions {
	return NewEndpointOptions(endpoints,
		WithInitialBackoff(10*time.Millisecond),
		WithMaxBackoff(50*time.Millisecond),
		WithBaseOptions(WithConnsPerHost(1), WithRequestTimeout(2*time.Second)),
	)
}

func check(ctx context.Context, c healthpb.HealthClient) error {
	_, err := c.Check(ctx, &healthpb.HealthCheckRequest{})
	return err
}

func TestPool_GetReusesConnections(t *testing.T) {
	addr := startHealthServer(t)

	p := NewPool(healthpb.NewHealthClient, WithConnsPerHost(2))
	defer p.Close()

	ctx := context.Background()
	for range 5 {
		c, err := p.Get(ctx, addr)
		require.NoError(t, err)
		require.NoError(t, check(ctx, c))
	}
	assert.Equal(t, []string{addr}, p.Addresses())

	p.Remove(addr)
	assert.Empty(t, p.Addresses())
}

func TestPool_Closed(t *testing.T) {
	p := NewPool(healthpb.NewHealthClient)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, err := p.Get(context.Background(), "127.0.0.1:1")
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestEndpointPool_FailsOverToNextEndpoint(t *testing.T) {
	live := startHealthServer(t)
	dead := deadAddr(t)

	ep := NewEndpointPool(healthpb.NewHealthClient, fastOptions(dead, live))
	defer ep.Close()

	err := ep.ExecuteOnAny(context.Background(), check)
	require.NoError(t, err)
	assert.Equal(t, []string{live, dead}, ep.Endpoints())
}

func TestEndpointPool_NonRetryableErrorReturnsImmediately(t *testing.T) {
	live := startHealthServer(t)

	ep := NewEndpointPool(healthpb.NewHealthClient, fastOptions(live))
	defer ep.Close()

	calls := 0
	err := ep.ExecuteOnAny(context.Background(), func(context.Context, healthpb.HealthClient) error {
		calls++
		return status.Error(codes.NotFound, "missing")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, 1, calls)
}

func TestEndpointPool_GivesUpAfterMaxRetries(t *testing.T) {
	live := startHealthServer(t)

	opts := fastOptions(live)
	opts.MaxRetries = 2
	ep := NewEndpointPool(healthpb.NewHealthClient, opts)
	defer ep.Close()

	calls := 0
	err := ep.ExecuteOnAny(context.Background(), func(context.Context, healthpb.HealthClient) error {
		calls++
		return status.Error(codes.Unavailable, "try later")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
}

func TestEndpointPool_NoEndpoints(t *testing.T) {
	ep := NewEndpointPool(healthpb.NewHealthClient, fastOptions())
	defer ep.Close()

	err := ep.ExecuteOnAny(context.Background(), check)
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestEndpointPool_ClosedAndPromote(t *testing.T) {
	ep := NewEndpointPool(healthpb.NewHealthClient, fastOptions("127.0.0.1:1", "127.0.0.1:2"))

	ep.Promote("127.0.0.1:2")
	assert.Equal(t, []string{"127.0.0.1:2", "127.0.0.1:1"}, ep.Endpoints())

	ep.SetEndpoints([]string{"127.0.0.1:3"})
	assert.Equal(t, []string{"127.0.0.1:3"}, ep.Endpoints())

	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())
	_, _, err := ep.GetAny(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestIsRetryableCode(t *testing.T) {
	assert.True(t, IsRetryableCode(codes.Unavailable))
	assert.False(t, IsRetryableCode(codes.NotFound))
}
