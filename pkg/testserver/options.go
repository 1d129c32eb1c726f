// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package testserver

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultReadyTimeout = 30 * time.Second
	DefaultGracePeriod  = 5 * time.Second

	// BinaryEnv names the server binary when WithBinary is not given.
	BinaryEnv = "ZAPTABLE_SERVER_BIN"
	// HelperEnv marks a process started by WithSelfExec.
	HelperEnv = "ZAPTABLE_TEST_HELPER"

	defaultBinary = "zaptable"
)

type options struct {
	name         string
	binary       string
	selfExec     bool
	tables       []string
	args         []string
	env          []string
	readyTimeout time.Duration
	gracePeriod  time.Duration
	log          *zerolog.Logger
}

func defaultOptions() options {
	return options{
		name:         "zaptable",
		readyTimeout: DefaultReadyTimeout,
		gracePeriod:  DefaultGracePeriod,
	}
}

// Option configures Start.
type Option func(*options)

// WithName sets the name used in log lines of the child.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithBinary runs the server binary at path.
func WithBinary(path string) Option {
	return func(o *options) {
		o.binary = path
		o.selfExec = false
	}
}

// WithSelfExec runs the current executable as the server. The executable's
// TestMain must call ServeIfHelper first.
func WithSelfExec() Option {
	return func(o *options) {
		o.selfExec = true
	}
}

// WithTables sets the tables the server creates at startup, replacing any
// set earlier.
func WithTables(names ...string) Option {
	return func(o *options) {
		o.tables = names
	}
}

// WithArgs appends extra server flags.
func WithArgs(args ...string) Option {
	return func(o *options) {
		o.args = append(o.args, args...)
	}
}

// WithEnv appends KEY=VALUE entries to the child environment.
func WithEnv(env ...string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// WithReadyTimeout bounds the wait for the readiness announcement.
func WithReadyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readyTimeout = d
	}
}

// WithGracePeriod sets how long Close waits after SIGTERM before SIGKILL.
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) {
		o.gracePeriod = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = &l
	}
}
