// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package testsession

import (
	"context"

	"github.com/LeeDigitalWorks/zaptable/pkg/client"
	"github.com/LeeDigitalWorks/zaptable/pkg/testserver"
)

// StarterFunc adapts a function to ProcessStarter.
type StarterFunc func(ctx context.Context) (Process, error)

func (f StarterFunc) Start(ctx context.Context) (Process, error) {
	return f(ctx)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, cfg client.Config) (Client, error)

func (f ConnectorFunc) Connect(ctx context.Context, cfg client.Config) (Client, error) {
	return f(ctx, cfg)
}

// ServerStarter starts a zaptable server child that creates TableName.
// Pass testserver.WithTables to change or clear the table list.
func ServerStarter(opts ...testserver.Option) ProcessStarter {
	opts = append([]testserver.Option{testserver.WithTables(TableName)}, opts...)
	return StarterFunc(func(ctx context.Context) (Process, error) {
		p, err := testserver.Start(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// GRPCConnector connects with client.Start.
func GRPCConnector() Connector {
	return ConnectorFunc(func(ctx context.Context, cfg client.Config) (Client, error) {
		c, err := client.Start(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &grpcClient{c: c}, nil
	})
}

type grpcClient struct {
	c *client.Client
}

func (g *grpcClient) Table(ctx context.Context, name string) (Table, error) {
	t, err := g.c.Table(ctx, name)
	if err != nil || t == nil {
		// A nil *client.Table must not become a non-nil Table.
		return nil, err
	}
	return t, nil
}

func (g *grpcClient) Close() error {
	return g.c.Close()
}

func (g *grpcClient) Unwrap() *client.Client {
	return g.c
}
