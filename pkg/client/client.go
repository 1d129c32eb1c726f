// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the client session of a table server. A session is
// started against an ordered list of endpoints, resolves tables by name and
// reads and writes their rows.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	zctx "github.com/LeeDigitalWorks/zaptable/pkg/context"
	"github.com/LeeDigitalWorks/zaptable/pkg/grpc/pool"
	"github.com/LeeDigitalWorks/zaptable/pkg/logger"
	"github.com/LeeDigitalWorks/zaptable/proto/table_pb"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/retry"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	ErrClosed     = errors.New("client is closed")
	ErrNotServing = errors.New("endpoint is not serving")
)

// stubs are the service clients sharing one connection.
type stubs struct {
	tables table_pb.TableServiceClient
	health healthpb.HealthClient
}

func newStubs(cc grpc.ClientConnInterface) stubs {
	return stubs{
		tables: table_pb.NewTableServiceClient(cc),
		health: healthpb.NewHealthClient(cc),
	}
}

// Client is a connected client session.
type Client struct {
	cfg      Config
	pool     *pool.EndpointPool[stubs]
	endpoint string

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.RWMutex
}

// Start validates cfg and connects to the first endpoint that reports
// SERVING, trying them in order. Each probe is bounded by DialTimeout and is
// not retried.
func Start(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := cfg.poolOptions()
	p := pool.NewEndpointPool(newStubs, opts)

	var lastErr error
	for _, ep := range cfg.Endpoints {
		err := probe(ctx, p, ep, opts)
		if err == nil {
			p.Promote(ep)
			logger.Debug().Str("endpoint", ep).Msg("client connected")
			return &Client{cfg: cfg, pool: p, endpoint: ep}, nil
		}
		logger.Debug().Str("endpoint", ep).Err(err).Msg("endpoint probe failed")
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	p.Close()
	return nil, fmt.Errorf("connect to %v: %w", cfg.Endpoints, lastErr)
}

func probe(ctx context.Context, p *pool.EndpointPool[stubs], ep string, opts pool.EndpointOptions) error {
	s, err := p.Get(ctx, ep)
	if err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	resp, err := s.health.Check(probeCtx, &healthpb.HealthCheckRequest{Service: table_pb.ServiceName}, retry.Disable())
	if err != nil {
		return fmt.Errorf("%s: %w", ep, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s: %w (%s)", ep, ErrNotServing, resp.GetStatus())
	}
	return nil
}

// Endpoint returns the endpoint the session connected to.
func (c *Client) Endpoint() string {
	if c == nil {
		return ""
	}
	return c.endpoint
}

func (c *Client) Config() Config {
	return c.cfg
}

// Tables returns the table catalog of the session.
func (c *Client) Tables() *Tables {
	return &Tables{c: c}
}

// Table is a shortcut for Tables().Table.
func (c *Client) Table(ctx context.Context, name string) (*Table, error) {
	return c.Tables().Table(ctx, name)
}

// execute runs fn on the preferred endpoint with a request id attached.
func (c *Client) execute(ctx context.Context, fn func(ctx context.Context, tables table_pb.TableServiceClient) error) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	return c.pool.ExecuteOnAny(ctx, func(ctx context.Context, s stubs) error {
		return fn(zctx.Outgoing(ctx), s.tables)
	})
}

// Close releases all connections. It is safe to call more than once and on
// a nil client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.closeErr = c.pool.Close()
	})
	return c.closeErr
}
