// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/zaptable/pkg/logger"
	"github.com/LeeDigitalWorks/zaptable/pkg/utils"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrNoEndpoints = errors.New("no endpoints configured")

// EndpointPool talks to an ordered list of equivalent servers. Calls go to
// the first endpoint; an endpoint that fails with a retryable error is
// moved to the back of the list and the call is retried on the next one.
type EndpointPool[T any] struct {
	pool *Pool[T]
	opts EndpointOptions

	mu        sync.RWMutex
	endpoints []string

	closed atomic.Bool
}

// NewEndpointPool creates a pool over opts.Endpoints.
func NewEndpointPool[T any](factory ClientFactory[T], opts EndpointOptions) *EndpointPool[T] {
	pool := NewPool(factory,
		WithDialTimeout(opts.DialTimeout),
		WithRequestTimeout(opts.RequestTimeout),
		WithMaxRetries(opts.MaxRetries),
		WithConnsPerHost(opts.ConnsPerHost),
		withDialOptsReplaced(opts.DialOpts),
	)

	return &EndpointPool[T]{
		pool:      pool,
		opts:      opts,
		endpoints: slices.Clone(opts.Endpoints),
	}
}

// Get returns a client for one specific endpoint.
func (ep *EndpointPool[T]) Get(ctx context.Context, addr string) (T, error) {
	var zero T
	if ep.closed.Load() {
		return zero, ErrPoolClosed
	}
	return ep.pool.Get(ctx, addr)
}

// GetAny returns a client for the first endpoint that yields one.
func (ep *EndpointPool[T]) GetAny(ctx context.Context) (T, string, error) {
	var zero T
	if ep.closed.Load() {
		return zero, "", ErrPoolClosed
	}

	addrs := ep.Endpoints()
	if len(addrs) == 0 {
		return zero, "", ErrNoEndpoints
	}

	var lastErr error
	for _, addr := range addrs {
		client, err := ep.pool.Get(ctx, addr)
		if err != nil {
			logger.Debug().Str("addr", addr).Err(err).Msg("failed to connect to endpoint")
			lastErr = err
			continue
		}
		return client, addr, nil
	}
	return zero, "", fmt.Errorf("failed to connect to any endpoint: %w", lastErr)
}

// ExecuteOnAny runs op against the preferred endpoint, failing over with
// backoff on retryable errors. Each attempt gets RequestTimeout when set.
func (ep *EndpointPool[T]) ExecuteOnAny(ctx context.Context, op func(ctx context.Context, client T) error) error {
	var lastErr error
	backoff := ep.opts.InitialBackoff

	for attempt := 0; attempt <= ep.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(utils.Jitter(backoff, ep.opts.BackoffJitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = min(backoff*2, ep.opts.MaxBackoff)
		}

		client, addr, err := ep.GetAny(ctx)
		if err != nil {
			if errors.Is(err, ErrPoolClosed) || errors.Is(err, ErrNoEndpoints) {
				return err
			}
			lastErr = err
			continue
		}

		err = ep.run(ctx, client, op)
		if err == nil {
			return nil
		}
		if !ep.isRetryableError(err) || ctx.Err() != nil {
			return err
		}

		ep.demote(addr)
		ep.pool.Remove(addr)
		lastErr = err

		logger.Debug().
			Int("attempt", attempt+1).
			Str("addr", addr).
			Err(err).
			Msg("operation failed with retryable error, trying next endpoint")
	}

	return fmt.Errorf("failed after %d attempts: %w", ep.opts.MaxRetries+1, lastErr)
}

func (ep *EndpointPool[T]) run(ctx context.Context, client T, op func(context.Context, T) error) error {
	if ep.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.opts.RequestTimeout)
		defer cancel()
	}
	return op(ctx, client)
}

// demote moves addr to the back of the endpoint list.
func (ep *EndpointPool[T]) demote(addr string) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	i := slices.Index(ep.endpoints, addr)
	if i < 0 || len(ep.endpoints) < 2 {
		return
	}
	ep.endpoints = append(slices.Delete(ep.endpoints, i, i+1), addr)
}

// Promote moves addr to the front of the endpoint list, adding it if absent.
func (ep *EndpointPool[T]) Promote(addr string) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.endpoints = slices.DeleteFunc(ep.endpoints, func(s string) bool { return s == addr })
	ep.endpoints = append([]string{addr}, ep.endpoints...)
}

func (ep *EndpointPool[T]) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	s, ok := status.FromError(err)
	if !ok {
		// Not a gRPC error - retry on connection errors
		return !errors.Is(err, context.Canceled)
	}
	return slices.Contains(ep.opts.RetryableCodes, s.Code())
}

// Endpoints returns the endpoints in preference order.
func (ep *EndpointPool[T]) Endpoints() []string {
	ep.mu.RLock()
	defer ep.mu.RUnlock()
	return slices.Clone(ep.endpoints)
}

// SetEndpoints replaces the endpoint list.
func (ep *EndpointPool[T]) SetEndpoints(addrs []string) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.endpoints = slices.Clone(addrs)
	logger.Debug().Strs("endpoints", addrs).Msg("endpoints updated")
}

// Close closes all connections. It is safe to call more than once.
func (ep *EndpointPool[T]) Close() error {
	if !ep.closed.CompareAndSwap(false, true) {
		return nil
	}
	return ep.pool.Close()
}

// IsRetryableCode returns true if the given gRPC code is retryable
func IsRetryableCode(code codes.Code) bool {
	return slices.Contains(DefaultRetryableCodes, code)
}
