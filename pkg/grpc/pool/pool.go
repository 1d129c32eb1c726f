// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/LeeDigitalWorks/zaptable/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

var ErrPoolClosed = errors.New("pool is closed")

// ClientFactory creates a gRPC client from a connection
type ClientFactory[T any] func(cc grpc.ClientConnInterface) T

// Pool manages gRPC connections to multiple hosts.
// Connections are created lazily and reused until the host is removed.
type Pool[T any] struct {
	mu      sync.RWMutex
	hosts   map[string]*hostPool[T] // address -> pool
	opts    Options
	factory ClientFactory[T]
	closed  atomic.Bool
}

// hostPool manages connections to a single host
type hostPool[T any] struct {
	mu      sync.Mutex
	address string
	conns   []*grpc.ClientConn
	clients []T
	next    int
	opts    Options
	factory ClientFactory[T]
}

// NewPool creates a new connection pool with the given client factory
func NewPool[T any](factory ClientFactory[T], opts ...Option) *Pool[T] {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.ConnsPerHost < 1 {
		options.ConnsPerHost = 1
	}

	return &Pool[T]{
		hosts:   make(map[string]*hostPool[T]),
		opts:    options,
		factory: factory,
	}
}

// Get returns a client for the given address.
// Creates connections lazily if they don't exist.
func (p *Pool[T]) Get(ctx context.Context, address string) (T, error) {
	var zero T
	if p.closed.Load() {
		return zero, ErrPoolClosed
	}

	hp := p.getOrCreateHostPool(address)
	return hp.get(ctx)
}

func (p *Pool[T]) Options() Options {
	return p.opts
}

// getOrCreateHostPool gets or creates a host pool for the address
func (p *Pool[T]) getOrCreateHostPool(address string) *hostPool[T] {
	p.mu.RLock()
	hp, exists := p.hosts[address]
	p.mu.RUnlock()
	if exists {
		return hp
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if hp, exists := p.hosts[address]; exists {
		return hp
	}

	hp = &hostPool[T]{
		address: address,
		conns:   make([]*grpc.ClientConn, 0, p.opts.ConnsPerHost),
		clients: make([]T, 0, p.opts.ConnsPerHost),
		opts:    p.opts,
		factory: p.factory,
	}
	p.hosts[address] = hp

	logger.Debug().Str("address", address).Msg("created new host pool")
	return hp
}

// Remove closes and forgets all connections for an address
func (p *Pool[T]) Remove(address string) {
	p.mu.Lock()
	hp, exists := p.hosts[address]
	if exists {
		delete(p.hosts, address)
	}
	p.mu.Unlock()

	if exists {
		if err := hp.close(); err != nil {
			logger.Warn().Err(err).Str("address", address).Msg("failed to close host connections")
		}
		logger.Debug().Str("address", address).Msg("removed host from pool")
	}
}

// Close closes all connections in the pool. It is safe to call more than once.
func (p *Pool[T]) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.mu.Lock()
	hosts := p.hosts
	p.hosts = make(map[string]*hostPool[T])
	p.mu.Unlock()

	var errs []error
	for _, hp := range hosts {
		if err := hp.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Addresses returns all addresses with open connections
func (p *Pool[T]) Addresses() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	addrs := make([]string, 0, len(p.hosts))
	for addr := range p.hosts {
		addrs = append(addrs, addr)
	}
	return addrs
}

// get returns a client, creating a connection if needed
func (hp *hostPool[T]) get(ctx context.Context) (T, error) {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	if len(hp.conns) < hp.opts.ConnsPerHost {
		return hp.createConnection(ctx)
	}

	// Round-robin across usable connections
	for range hp.conns {
		i := hp.next % len(hp.conns)
		hp.next++
		state := hp.conns[i].GetState()
		if state == connectivity.Ready || state == connectivity.Idle || state == connectivity.Connecting {
			return hp.clients[i], nil
		}
	}

	// All connections failed; kick the first one and hand it out so the
	// caller sees the real transport error.
	hp.conns[0].Connect()
	return hp.clients[0], nil
}

// createConnection creates a new connection to the host
func (hp *hostPool[T]) createConnection(_ context.Context) (T, error) {
	var zero T

	// NewClient connects lazily on first RPC
	conn, err := grpc.NewClient(hp.address, hp.opts.DialOpts...)
	if err != nil {
		return zero, fmt.Errorf("failed to create client for %s: %w", hp.address, err)
	}

	client := hp.factory(conn)
	hp.conns = append(hp.conns, conn)
	hp.clients = append(hp.clients, client)

	logger.Debug().
		Str("address", hp.address).
		Int("total_conns", len(hp.conns)).
		Msg("created new connection")

	return client, nil
}

// close closes all connections in the host pool
func (hp *hostPool[T]) close() error {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	var errs []error
	for _, conn := range hp.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	hp.conns = nil
	hp.clients = nil

	if len(errs) > 0 {
		return fmt.Errorf("close connections to %s: %w", hp.address, errors.Join(errs...))
	}
	return nil
}
