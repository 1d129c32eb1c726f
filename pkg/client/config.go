// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zaptable/pkg/grpc/pool"
	"github.com/LeeDigitalWorks/zaptable/pkg/utils"
)

var ErrNoEndpoints = errors.New("client config has no endpoints")

// Config holds configuration for a client session
type Config struct {
	// Endpoints are host:port server addresses in preference order
	Endpoints []string

	// DialTimeout bounds the connect probe of each endpoint (default: 5s)
	DialTimeout time.Duration

	// RequestTimeout for individual requests (default: 10s)
	RequestTimeout time.Duration

	// MaxRetries for failed requests (default: 3)
	MaxRetries int

	// ConnsPerHost is the number of connections per endpoint (default: 4)
	ConnsPerHost int
}

// NewConfig returns a Config for endpoints with default timeouts.
func NewConfig(endpoints ...string) Config {
	return Config{Endpoints: endpoints}
}

// Validate rejects an empty endpoint list and malformed host:port entries.
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return ErrNoEndpoints
	}
	for _, ep := range c.Endpoints {
		if err := utils.ValidateEndpoint(ep); err != nil {
			return err
		}
	}
	if c.DialTimeout < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("negative timeout in client config")
	}
	return nil
}

// poolOptions applies the config over the pool defaults.
func (c Config) poolOptions() pool.EndpointOptions {
	opts := pool.DefaultEndpointOptions(c.Endpoints)

	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	if c.RequestTimeout > 0 {
		opts.RequestTimeout = c.RequestTimeout
	}
	if c.MaxRetries > 0 {
		opts.MaxRetries = c.MaxRetries
	}
	if c.ConnsPerHost > 0 {
		opts.ConnsPerHost = c.ConnsPerHost
	}
	return opts
}
