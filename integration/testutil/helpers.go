//go:build integration

// Package testutil provides shared utilities for integration tests.
package testutil

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zaptable/pkg/client"
	"github.com/LeeDigitalWorks/zaptable/pkg/testsession"
)

// DefaultTimeout is the default timeout for test operations
const DefaultTimeout = 30 * time.Second

// ShortTimeout is a shorter timeout for simple operations
const ShortTimeout = 5 * time.Second

// GetEnv returns the environment variable value or a default
func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Session returns the suite session, failing t outside a ready suite.
func Session(t *testing.T) *testsession.Session {
	t.Helper()
	s := testsession.Current()
	if s == nil {
		t.Fatal("no test session: run the package through testsession.Main")
	}
	return s
}

// Table returns the suite table.
func Table(t *testing.T) *client.Table {
	t.Helper()
	return Session(t).GRPCTable(t)
}

// Client returns the suite client.
func Client(t *testing.T) *client.Client {
	t.Helper()
	return Session(t).GRPCClient(t)
}

// WithTimeout creates a context with the default timeout
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, DefaultTimeout)
}

// WithShortTimeout creates a context with a short timeout
func WithShortTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ShortTimeout)
}

var (
	keyBase = time.Now().UnixNano()
	keySeq  atomic.Int64
)

// UniqueKey returns a row key no other test of this run uses.
func UniqueKey() int64 {
	return keyBase + keySeq.Add(1)
}

// UniqueID generates a unique ID for test objects using timestamp
func UniqueID(prefix string) string {
	return prefix + "-" + time.Now().Format("20060102-150405.000000000")
}

// SkipIfShort skips the test if running in short mode
func SkipIfShort(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
}
