package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zaptable/pkg/table"
	"github.com/LeeDigitalWorks/zaptable/proto/table_pb"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newCatalog(t *testing.T, names ...string) *table.Catalog {
	t.Helper()

	ctx := context.Background()
	catalog, err := table.Open(ctx, table.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	for _, name := range names {
		_, err := catalog.Create(ctx, table.Schema{Name: name})
		require.NoError(t, err)
	}
	return catalog
}

// startServer runs a server on a loopback port and returns a connection to it.
func startServer(t *testing.T, catalog *table.Catalog, cfg Config) (*Server, *grpc.ClientConn) {
	t.Helper()

	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:0"
	}
	srv, err := New(cfg, catalog)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return srv, conn
}

func TestServer_HealthAndLookup(t *testing.T) {
	catalog := newCatalog(t, "PUB.tbl1")
	_, conn := startServer(t, catalog, Config{})
	ctx := context.Background()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: table_pb.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	client := table_pb.NewTableServiceClient(conn)
	st, err := client.GetTable(ctx, wrapperspb.String("PUB.tbl1"))
	require.NoError(t, err)
	schema, err := table_pb.SchemaFromStruct(st)
	require.NoError(t, err)
	assert.Equal(t, table_pb.Schema{Name: "PUB.tbl1", KeyColumn: "key", ValueColumn: "val"}, schema)

	_, err = client.GetTable(ctx, wrapperspb.String("PUB.missing"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.GetTable(ctx, wrapperspb.String(""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_RowOperations(t *testing.T) {
	catalog := newCatalog(t, "PUB.tbl1")
	_, conn := startServer(t, catalog, Config{Registerer: prometheus.NewRegistry()})
	client := table_pb.NewTableServiceClient(conn)
	ctx := context.Background()

	for _, row := range []table_pb.Row{
		{Table: "PUB.tbl1", Key: 2, Value: "two"},
		{Table: "PUB.tbl1", Key: 1, Value: "one"},
		{Table: "PUB.tbl1", Key: 2, Value: "TWO"},
	} {
		_, err := client.Upsert(ctx, row.ToStruct())
		require.NoError(t, err)
	}

	st, err := client.Get(ctx, table_pb.KeyStruct("PUB.tbl1", 2))
	require.NoError(t, err)
	assert.True(t, table_pb.HasValue(st))
	row, err := table_pb.RowFromStruct(st)
	require.NoError(t, err)
	assert.Equal(t, "TWO", row.Value)

	st, err = client.Get(ctx, table_pb.KeyStruct("PUB.tbl1", 3))
	require.NoError(t, err)
	assert.False(t, table_pb.HasValue(st))

	_, err = client.Get(ctx, table_pb.KeyStruct("PUB.nope", 3))
	assert.Equal(t, codes.NotFound, status.Code(err))

	lv, err := client.Scan(ctx, wrapperspb.String("PUB.tbl1"))
	require.NoError(t, err)
	rows, err := table_pb.RowsFromList(lv)
	require.NoError(t, err)
	assert.Equal(t, []table_pb.Row{
		{Table: "PUB.tbl1", Key: 1, Value: "one"},
		{Table: "PUB.tbl1", Key: 2, Value: "TWO"},
	}, rows)

	existed, err := client.Delete(ctx, table_pb.KeyStruct("PUB.tbl1", 1))
	require.NoError(t, err)
	assert.True(t, existed.GetValue())
	existed, err = client.Delete(ctx, table_pb.KeyStruct("PUB.tbl1", 1))
	require.NoError(t, err)
	assert.False(t, existed.GetValue())

	_, err = client.Upsert(ctx, table_pb.Row{Table: "PUB.nope", Key: 1}.ToStruct())
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestTableService_CountsRowOperations(t *testing.T) {
	catalog := newCatalog(t, "PUB.tbl1")
	svc := NewTableService(catalog, prometheus.NewRegistry())
	ctx := context.Background()

	for key := range int64(3) {
		_, err := svc.Upsert(ctx, table_pb.Row{Table: "PUB.tbl1", Key: key, Value: "v"}.ToStruct())
		require.NoError(t, err)
	}
	_, err := svc.Scan(ctx, wrapperspb.String("PUB.tbl1"))
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(svc.rowOps.WithLabelValues("PUB.tbl1", "upsert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.rowOps.WithLabelValues("PUB.tbl1", "scan")))
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{nil, codes.OK},
		{table.ErrTableNotFound, codes.NotFound},
		{table.ErrTableExists, codes.AlreadyExists},
		{table.ErrCatalogClosed, codes.Unavailable},
		{table.ErrInvalidSchema, codes.InvalidArgument},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{assert.AnError, codes.Internal},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, status.Code(toStatus(tc.err)), "%v", tc.err)
	}
}

func TestServer_CreateListDrop(t *testing.T) {
	catalog := newCatalog(t)
	_, conn := startServer(t, catalog, Config{})
	client := table_pb.NewTableServiceClient(conn)
	ctx := context.Background()

	_, err := client.CreateTable(ctx, table_pb.Schema{Name: "PUB.tbl2", KeyColumn: "id"}.ToStruct())
	require.NoError(t, err)

	_, err = client.CreateTable(ctx, table_pb.Schema{Name: "PUB.tbl2"}.ToStruct())
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = client.CreateTable(ctx, table_pb.Schema{Name: "PUB.bad", KeyColumn: "x", ValueColumn: "x"}.ToStruct())
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	lv, err := client.ListTables(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	schemas, err := table_pb.SchemasFromList(lv)
	require.NoError(t, err)
	assert.Equal(t, []table_pb.Schema{{Name: "PUB.tbl2", KeyColumn: "id", ValueColumn: "val"}}, schemas)

	_, err = client.DropTable(ctx, wrapperspb.String("PUB.tbl2"))
	require.NoError(t, err)
	_, err = client.DropTable(ctx, wrapperspb.String("PUB.tbl2"))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_DebugEndpoints(t *testing.T) {
	catalog := newCatalog(t)
	srv, _ := startServer(t, catalog, Config{DebugAddr: "127.0.0.1:0"})
	require.NotEmpty(t, srv.DebugAddr())

	httpClient := &http.Client{Timeout: 5 * time.Second}
	defer httpClient.CloseIdleConnections()

	resp, err := httpClient.Get("http://" + srv.DebugAddr() + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	catalog := newCatalog(t)
	srv, err := New(Config{BindAddr: "127.0.0.1:0", DebugAddr: "127.0.0.1:0"}, catalog)
	require.NoError(t, err)
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServer_ShutdownNotServing(t *testing.T) {
	catalog := newCatalog(t)
	srv, conn := startServer(t, catalog, Config{ShutdownTimeout: time.Second})
	require.NoError(t, srv.Shutdown(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	assert.Error(t, err)
}
