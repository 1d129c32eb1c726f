// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"

	"github.com/LeeDigitalWorks/zaptable/pkg/debug"
	"github.com/LeeDigitalWorks/zaptable/pkg/logger"
	"github.com/LeeDigitalWorks/zaptable/pkg/table"
	"github.com/LeeDigitalWorks/zaptable/proto/table_pb"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TableService serves zaptable.TableService from a catalog.
type TableService struct {
	catalog *table.Catalog

	rowOps *prometheus.CounterVec
}

var _ table_pb.TableServiceServer = (*TableService)(nil)

func NewTableService(catalog *table.Catalog, reg prometheus.Registerer) *TableService {
	s := &TableService{
		catalog: catalog,
		rowOps: debug.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zaptable",
			Subsystem: "table",
			Name:      "row_operations_total",
			Help:      "Row operations by table and operation.",
		}, []string{"table", "op"})),
	}
	debug.Register(reg, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "zaptable",
		Subsystem: "table",
		Name:      "tables",
		Help:      "Number of tables in the catalog.",
	}, func() float64 { return float64(len(catalog.List())) }))
	return s
}

func (s *TableService) GetTable(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "table name is required")
	}
	t, err := s.catalog.Table(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return schemaToPB(t.Schema()).ToStruct(), nil
}

func (s *TableService) ListTables(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	schemas := s.catalog.List()
	out := make([]table_pb.Schema, 0, len(schemas))
	for _, schema := range schemas {
		out = append(out, schemaToPB(schema))
	}
	return table_pb.SchemasToList(out), nil
}

func (s *TableService) CreateTable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := table_pb.SchemaFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	t, err := s.catalog.Create(ctx, table.Schema{
		Name:        in.Name,
		KeyColumn:   in.KeyColumn,
		ValueColumn: in.ValueColumn,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return schemaToPB(t.Schema()).ToStruct(), nil
}

func (s *TableService) DropTable(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "table name is required")
	}
	if err := s.catalog.Drop(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *TableService) Upsert(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	row, t, err := s.resolveRow(req)
	if err != nil {
		return nil, err
	}
	if err := t.Upsert(ctx, row.Key, row.Value); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("table", row.Table).Int64("key", row.Key).Msg("upsert failed")
		return nil, toStatus(err)
	}
	s.rowOps.WithLabelValues(row.Table, "upsert").Inc()
	return &emptypb.Empty{}, nil
}

func (s *TableService) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	row, t, err := s.resolveRow(req)
	if err != nil {
		return nil, err
	}
	value, ok, err := t.Get(ctx, row.Key)
	if err != nil {
		return nil, toStatus(err)
	}
	s.rowOps.WithLabelValues(row.Table, "get").Inc()
	if !ok {
		// A missing key is not an error; the reply just has no value.
		return table_pb.KeyStruct(row.Table, row.Key), nil
	}
	row.Value = value
	return row.ToStruct(), nil
}

func (s *TableService) Delete(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	row, t, err := s.resolveRow(req)
	if err != nil {
		return nil, err
	}
	existed, err := t.Delete(ctx, row.Key)
	if err != nil {
		return nil, toStatus(err)
	}
	s.rowOps.WithLabelValues(row.Table, "delete").Inc()
	return wrapperspb.Bool(existed), nil
}

func (s *TableService) Scan(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	t, err := s.catalog.Table(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	records, err := t.Scan(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	s.rowOps.WithLabelValues(req.GetValue(), "scan").Inc()

	rows := make([]table_pb.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, table_pb.Row{Table: req.GetValue(), Key: r.Key, Value: r.Value})
	}
	return table_pb.RowsToList(rows), nil
}

func (s *TableService) resolveRow(req *structpb.Struct) (table_pb.Row, *table.Table, error) {
	row, err := table_pb.RowFromStruct(req)
	if err != nil {
		return row, nil, status.Error(codes.InvalidArgument, err.Error())
	}
	t, err := s.catalog.Table(row.Table)
	if err != nil {
		return row, nil, toStatus(err)
	}
	return row, t, nil
}

func schemaToPB(s table.Schema) table_pb.Schema {
	return table_pb.Schema{Name: s.Name, KeyColumn: s.KeyColumn, ValueColumn: s.ValueColumn}
}

// toStatus maps catalog errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, table.ErrTableNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, table.ErrTableExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, table.ErrCatalogClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, table.ErrInvalidSchema):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
