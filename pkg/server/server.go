// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package server runs a table server: the TableService and gRPC health
// service on one listener and an optional debug HTTP listener.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/zaptable/pkg/debug"
	"github.com/LeeDigitalWorks/zaptable/pkg/logger"
	"github.com/LeeDigitalWorks/zaptable/pkg/table"
	"github.com/LeeDigitalWorks/zaptable/pkg/utils"
	"github.com/LeeDigitalWorks/zaptable/proto"
	"github.com/LeeDigitalWorks/zaptable/proto/table_pb"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const DefaultShutdownTimeout = 10 * time.Second

type Config struct {
	// BindAddr is the gRPC listen address. Port 0 picks a free port.
	BindAddr string

	// DebugAddr is the debug HTTP listen address; empty disables it.
	DebugAddr string

	ShutdownTimeout time.Duration

	// Registerer receives the server metrics; nil skips registration.
	Registerer prometheus.Registerer
}

// Server owns the listeners of a table server. Create it with New, call
// Start, then Shutdown.
type Server struct {
	cfg     Config
	catalog *table.Catalog

	grpcServer *grpc.Server
	health     *health.Server
	grpcLis    net.Listener

	debugServer *http.Server
	debugLis    net.Listener

	errCh    chan error
	wg       sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once
}

// New binds the listeners and registers the services. Nothing is served
// until Start.
func New(cfg Config, catalog *table.Catalog) (*Server, error) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = utils.JoinHostPort(utils.Loopback, 0)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	grpcLis, err := utils.NewListener(cfg.BindAddr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		catalog: catalog,
		grpcLis: grpcLis,
		health:  health.NewServer(),
		errCh:   make(chan error, 2),
	}

	if cfg.DebugAddr != "" {
		s.debugLis, err = utils.NewListener(cfg.DebugAddr)
		if err != nil {
			grpcLis.Close()
			return nil, err
		}
		s.debugServer = &http.Server{Handler: debug.GetMux(), ReadHeaderTimeout: 10 * time.Second}
	}

	s.grpcServer = proto.NewGRPCServer(proto.NewServerMetrics(cfg.Registerer))
	table_pb.RegisterTableServiceServer(s.grpcServer, NewTableService(catalog, cfg.Registerer))
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(table_pb.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return s, nil
}

// Addr returns the bound gRPC address.
func (s *Server) Addr() string {
	return s.grpcLis.Addr().String()
}

// DebugAddr returns the bound debug address, or "" when disabled.
func (s *Server) DebugAddr() string {
	if s.debugLis == nil {
		return ""
	}
	return s.debugLis.Addr().String()
}

// Start serves in the background and marks the server SERVING.
func (s *Server) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Info().Str("bind_addr", s.Addr()).Msg("Starting table gRPC server")
		if err := s.grpcServer.Serve(s.grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.errCh <- err
		}
	}()

	if s.debugServer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			logger.Info().Str("debug_addr", s.DebugAddr()).Msg("Starting debug HTTP server")
			if err := s.debugServer.Serve(s.debugLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.errCh <- err
			}
		}()
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(table_pb.ServiceName, healthpb.HealthCheckResponse_SERVING)
	debug.SetReadyCheck(s.catalog.IsOpen)
	debug.SetReady()
}

// Errors reports failures of the serve loops.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Shutdown drains in-flight RPCs for up to the shutdown timeout, then
// stops hard. The catalog is left open for the caller to close.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		debug.SetNotReady()
		s.health.Shutdown()

		if !s.started.Load() {
			s.grpcServer.Stop()
			err = s.grpcLis.Close()
			if s.debugLis != nil {
				err = errors.Join(err, s.debugLis.Close())
			}
			return
		}

		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()

		timer := time.NewTimer(s.cfg.ShutdownTimeout)
		defer timer.Stop()
		select {
		case <-stopped:
		case <-timer.C:
			logger.Warn().Dur("timeout", s.cfg.ShutdownTimeout).Msg("graceful stop timed out, stopping")
			s.grpcServer.Stop()
			<-stopped
		case <-ctx.Done():
			s.grpcServer.Stop()
			<-stopped
		}

		if s.debugServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
			defer cancel()
			err = s.debugServer.Shutdown(shutdownCtx)
		}
		s.wg.Wait()
	})
	return err
}
