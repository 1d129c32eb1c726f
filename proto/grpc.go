// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package proto

import (
	"context"
	"time"

	zctx "github.com/LeeDigitalWorks/zaptable/pkg/context"
	"github.com/LeeDigitalWorks/zaptable/pkg/debug"
	pool "github.com/LeeDigitalWorks/zaptable/pkg/grpc/pool"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Re-export constants from pkg/grpc/pool so server and client agree
const (
	Max_Message_Size = pool.MaxMessageSize
	KeepAliveTime    = pool.KeepAliveTime
	KeepAliveTimeout = pool.KeepAliveTimeout
)

// ServerMetrics counts and times unary RPCs by method and status code.
type ServerMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewServerMetrics registers the RPC metrics on reg, reusing collectors that
// are already registered. A nil reg leaves them unregistered.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	return &ServerMetrics{
		requests: debug.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zaptable",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Unary RPCs handled, by method and status code.",
		}, []string{"method", "code"})),
		latency: debug.Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zaptable",
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "Unary RPC latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"method"})),
	}
}

func (m *ServerMetrics) Requests() *prometheus.CounterVec {
	return m.requests
}

func (m *ServerMetrics) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.latency.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}

// NewGRPCServer builds a server with the shared keepalive and message size
// settings. Extra unary interceptors run after the request id interceptor.
func NewGRPCServer(metrics *ServerMetrics, opts ...grpc.ServerOption) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{requestIDUnaryInterceptor()}
	if metrics != nil {
		interceptors = append(interceptors, metrics.UnaryInterceptor())
	}

	var options []grpc.ServerOption
	options = append(options,
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    KeepAliveTime,    // wait time before ping if no activity
			Timeout: KeepAliveTimeout, // ping timeout
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             KeepAliveTime, // min time a client should wait before sending a ping
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(Max_Message_Size),
		grpc.MaxSendMsgSize(Max_Message_Size),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	for _, opt := range opts {
		if opt != nil {
			options = append(options, opt)
		}
	}
	return grpc.NewServer(options...)
}

func requestIDUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		incomingMd, _ := metadata.FromIncomingContext(ctx)
		idList := incomingMd.Get(zctx.RequestKey)
		var reqID string
		if len(idList) > 0 {
			reqID = idList[0]
		}
		if reqID == "" {
			ctx, reqID = zctx.WithUUID(ctx)
		}

		ctx = zctx.FromUUID(ctx, reqID)

		grpc.SetTrailer(ctx, metadata.Pairs(zctx.RequestKey, reqID))

		return handler(ctx, req)
	}
}
