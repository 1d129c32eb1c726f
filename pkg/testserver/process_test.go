package testserver

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestMain(m *testing.M) {
	ServeIfHelper()
	goleak.VerifyTestMain(m)
}

func TestStart_SelfExecReady(t *testing.T) {
	p, err := Start(context.Background(), WithSelfExec(), WithTables("PUB.tbl1"))
	require.NoError(t, err)
	defer p.Close()

	require.Greater(t, p.Port(), 0)
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(p.Port()), p.Addr("grpc"))
	assert.NotEmpty(t, p.Addr("debug"))
	assert.Greater(t, p.Pid(), 0)

	conn, err := grpc.NewClient(p.Addr("grpc"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "second close is a no-op")
}

func TestStart_ExitBeforeReady(t *testing.T) {
	p, err := Start(context.Background(), WithSelfExec(), WithArgs("--engine", "rocksdb"))
	require.ErrorIs(t, err, ErrExitedBeforeReady)
	assert.Nil(t, p)
	assert.True(t, strings.Contains(err.Error(), "rocksdb"), "stderr tail is included: %v", err)
}

func TestStart_ReadyTimeout(t *testing.T) {
	p, err := Start(context.Background(), WithSelfExec(), WithReadyTimeout(time.Millisecond))
	require.ErrorIs(t, err, ErrReadyTimeout)
	assert.Nil(t, p)
}

func TestStart_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := Start(ctx, WithSelfExec())
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, p)
}

func TestStart_MissingBinary(t *testing.T) {
	_, err := Start(context.Background(), WithBinary("/nonexistent/zaptable"))
	require.Error(t, err)
}

func TestStart_BinaryFromEnv(t *testing.T) {
	t.Setenv(BinaryEnv, "/nonexistent/from-env")

	_, err := Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/from-env")
}

func TestProcess_NilAndZero(t *testing.T) {
	var p *Process
	assert.NoError(t, p.Close())
	assert.Zero(t, p.Port())
	assert.Empty(t, p.Addr("grpc"))
	assert.Zero(t, p.Pid())

	var zero Process
	assert.NoError(t, zero.Close())
	assert.Zero(t, zero.Port())
}

func TestInHelperProcess(t *testing.T) {
	assert.False(t, InHelperProcess())
	t.Setenv(HelperEnv, "1")
	assert.True(t, InHelperProcess())
}
