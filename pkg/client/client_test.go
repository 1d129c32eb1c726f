package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zaptable/pkg/server"
	"github.com/LeeDigitalWorks/zaptable/pkg/table"
	"github.com/LeeDigitalWorks/zaptable/proto/table_pb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startTableServer serves a memory catalog holding tables on a loopback port.
func startTableServer(t *testing.T, tables ...string) string {
	t.Helper()

	ctx := context.Background()
	catalog, err := table.Open(ctx, table.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	for _, name := range tables {
		_, err := catalog.Create(ctx, table.Schema{Name: name})
		require.NoError(t, err)
	}

	srv, err := server.New(server.Config{BindAddr: "127.0.0.1:0"}, catalog)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv.Addr()
}

func deadAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func startClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := Start(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", NewConfig("127.0.0.1:7000"), false},
		{"several", NewConfig("127.0.0.1:7000", "localhost:7001"), false},
		{"empty", NewConfig(), true},
		{"missing port", NewConfig("127.0.0.1"), true},
		{"port zero", NewConfig("127.0.0.1:0"), true},
		{"negative timeout", Config{Endpoints: []string{"127.0.0.1:1"}, DialTimeout: -time.Second}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.ErrorIs(t, NewConfig().Validate(), ErrNoEndpoints)
}

func TestConfig_PoolOptionsDefaults(t *testing.T) {
	opts := NewConfig("127.0.0.1:7000").poolOptions()
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
	assert.Equal(t, 10*time.Second, opts.RequestTimeout)

	opts = Config{Endpoints: []string{"127.0.0.1:7000"}, DialTimeout: time.Second, ConnsPerHost: 1}.poolOptions()
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 1, opts.ConnsPerHost)
}

func TestStart_InvalidConfig(t *testing.T) {
	_, err := Start(context.Background(), NewConfig())
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestClient_TableLookup(t *testing.T) {
	addr := startTableServer(t, "PUB.tbl1")
	c := startClient(t, NewConfig(addr))
	ctx := context.Background()

	assert.Equal(t, addr, c.Endpoint())

	tbl, err := c.Tables().Table(ctx, "PUB.tbl1")
	require.NoError(t, err)
	require.NotNil(t, tbl)
	assert.Equal(t, "PUB.tbl1", tbl.Name())
	assert.Equal(t, "key", tbl.KeyColumn())
	assert.Equal(t, "val", tbl.ValueColumn())

	missing, err := c.Table(ctx, "PUB.tbl9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClient_RowOperations(t *testing.T) {
	addr := startTableServer(t, "PUB.tbl1")
	c := startClient(t, NewConfig(addr))
	ctx := context.Background()

	tbl, err := c.Table(ctx, "PUB.tbl1")
	require.NoError(t, err)
	require.NotNil(t, tbl)

	require.NoError(t, tbl.Upsert(ctx, 10, "ten"))
	require.NoError(t, tbl.Upsert(ctx, -5, ""))

	v, ok, err := tbl.Get(ctx, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ten", v)

	v, ok, err = tbl.Get(ctx, -5)
	require.NoError(t, err)
	assert.True(t, ok, "an empty value is still present")
	assert.Empty(t, v)

	_, ok, err = tbl.Get(ctx, 11)
	require.NoError(t, err)
	assert.False(t, ok)

	records, err := tbl.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Record{{Key: -5, Value: ""}, {Key: 10, Value: "ten"}}, records)

	existed, err := tbl.Delete(ctx, 10)
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = tbl.Delete(ctx, 10)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestClient_CreateListDrop(t *testing.T) {
	addr := startTableServer(t)
	c := startClient(t, NewConfig(addr))
	ctx := context.Background()

	tbl, err := c.Tables().Create(ctx, Schema{Name: "PUB.tbl1", ValueColumn: "payload"})
	require.NoError(t, err)
	assert.Equal(t, "payload", tbl.ValueColumn())

	_, err = c.Tables().Create(ctx, Schema{Name: "PUB.tbl1"})
	assert.Error(t, err)

	schemas, err := c.Tables().List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Schema{{Name: "PUB.tbl1", KeyColumn: "key", ValueColumn: "payload"}}, schemas)

	require.NoError(t, c.Tables().Drop(ctx, "PUB.tbl1"))
	gone, err := c.Table(ctx, "PUB.tbl1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStart_FailsOverInOrder(t *testing.T) {
	live := startTableServer(t, "PUB.tbl1")
	dead := deadAddr(t)

	c := startClient(t, Config{Endpoints: []string{dead, live}, DialTimeout: 2 * time.Second})
	assert.Equal(t, live, c.Endpoint())

	tbl, err := c.Table(context.Background(), "PUB.tbl1")
	require.NoError(t, err)
	assert.NotNil(t, tbl)
}

func TestStart_AllEndpointsDown(t *testing.T) {
	_, err := Start(context.Background(), Config{
		Endpoints:   []string{deadAddr(t), deadAddr(t)},
		DialTimeout: time.Second,
	})
	require.Error(t, err)
}

func TestStart_NotServing(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	hs := health.NewServer()
	hs.SetServingStatus(table_pb.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	_, err = Start(context.Background(), Config{Endpoints: []string{lis.Addr().String()}, DialTimeout: time.Second})
	assert.ErrorIs(t, err, ErrNotServing)
}

func TestClient_Close(t *testing.T) {
	addr := startTableServer(t, "PUB.tbl1")
	c, err := Start(context.Background(), NewConfig(addr))
	require.NoError(t, err)

	tbl, err := c.Table(context.Background(), "PUB.tbl1")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Table(context.Background(), "PUB.tbl1")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tbl.Upsert(context.Background(), 1, "x"), ErrClosed)

	var nilClient *Client
	assert.NoError(t, nilClient.Close())
	assert.Empty(t, nilClient.Endpoint())
}
