// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package table_pb defines the zaptable.TableService gRPC service. Requests
// and responses are protobuf well-known types (structpb, wrapperspb,
// emptypb); messages.go converts them to and from Go values.
package table_pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "zaptable.TableService"

const (
	TableService_GetTable_FullMethodName    = "/zaptable.TableService/GetTable"
	TableService_ListTables_FullMethodName  = "/zaptable.TableService/ListTables"
	TableService_CreateTable_FullMethodName = "/zaptable.TableService/CreateTable"
	TableService_DropTable_FullMethodName   = "/zaptable.TableService/DropTable"
	TableService_Upsert_FullMethodName      = "/zaptable.TableService/Upsert"
	TableService_Get_FullMethodName         = "/zaptable.TableService/Get"
	TableService_Delete_FullMethodName      = "/zaptable.TableService/Delete"
	TableService_Scan_FullMethodName        = "/zaptable.TableService/Scan"
)

// TableServiceServer is the server API for TableService.
type TableServiceServer interface {
	// GetTable returns the schema of a table, or NotFound.
	GetTable(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListTables(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	CreateTable(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DropTable(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Upsert(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	// Get returns the row for a key. The reply has no value field when
	// the key is absent, and the call fails with NotFound for an unknown table.
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	Scan(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
}

// TableServiceClient is the client API for TableService.
type TableServiceClient interface {
	GetTable(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListTables(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	CreateTable(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	DropTable(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Upsert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	Scan(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
}

type tableServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTableServiceClient(cc grpc.ClientConnInterface) TableServiceClient {
	return &tableServiceClient{cc}
}

func invoke[Resp any, PResp interface {
	*Resp
	proto.Message
}](ctx context.Context, cc grpc.ClientConnInterface, method string, in proto.Message, opts []grpc.CallOption) (PResp, error) {
	out := PResp(new(Resp))
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tableServiceClient) GetTable(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, TableService_GetTable_FullMethodName, in, opts)
}

func (c *tableServiceClient) ListTables(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, TableService_ListTables_FullMethodName, in, opts)
}

func (c *tableServiceClient) CreateTable(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, TableService_CreateTable_FullMethodName, in, opts)
}

func (c *tableServiceClient) DropTable(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, TableService_DropTable_FullMethodName, in, opts)
}

func (c *tableServiceClient) Upsert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, TableService_Upsert_FullMethodName, in, opts)
}

func (c *tableServiceClient) Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, TableService_Get_FullMethodName, in, opts)
}

func (c *tableServiceClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	return invoke[wrapperspb.BoolValue](ctx, c.cc, TableService_Delete_FullMethodName, in, opts)
}

func (c *tableServiceClient) Scan(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, TableService_Scan_FullMethodName, in, opts)
}

func RegisterTableServiceServer(s grpc.ServiceRegistrar, srv TableServiceServer) {
	s.RegisterService(&TableService_ServiceDesc, srv)
}

// unary builds the method handler for one RPC.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp any](fullMethod string, call func(TableServiceServer, context.Context, PReq) (Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(TableServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TableService_ServiceDesc is the grpc.ServiceDesc for TableService.
var TableService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TableServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetTable",
			Handler:    unary[wrapperspb.StringValue](TableService_GetTable_FullMethodName, TableServiceServer.GetTable),
		},
		{
			MethodName: "ListTables",
			Handler:    unary[emptypb.Empty](TableService_ListTables_FullMethodName, TableServiceServer.ListTables),
		},
		{
			MethodName: "CreateTable",
			Handler:    unary[structpb.Struct](TableService_CreateTable_FullMethodName, TableServiceServer.CreateTable),
		},
		{
			MethodName: "DropTable",
			Handler:    unary[wrapperspb.StringValue](TableService_DropTable_FullMethodName, TableServiceServer.DropTable),
		},
		{
			MethodName: "Upsert",
			Handler:    unary[structpb.Struct](TableService_Upsert_FullMethodName, TableServiceServer.Upsert),
		},
		{
			MethodName: "Get",
			Handler:    unary[structpb.Struct](TableService_Get_FullMethodName, TableServiceServer.Get),
		},
		{
			MethodName: "Delete",
			Handler:    unary[structpb.Struct](TableService_Delete_FullMethodName, TableServiceServer.Delete),
		},
		{
			MethodName: "Scan",
			Handler:    unary[wrapperspb.StringValue](TableService_Scan_FullMethodName, TableServiceServer.Scan),
		},
	},
	Streams: []grpc.StreamDesc{},
}
