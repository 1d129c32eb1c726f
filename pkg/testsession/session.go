// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package testsession

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zaptable/pkg/client"

	"github.com/google/uuid"
)

// Session is what tests see of a ready suite. It does not change after
// setup; tests may use the client and table but must not close them.
type Session struct {
	Client Client
	// Table is nil when the server has no table named TableName.
	Table     Table
	TableName string

	Port     int
	Endpoint string
	Config   client.Config

	ID        uuid.UUID
	StartedAt time.Time
}

var current atomic.Pointer[Session]

// Current returns the session published by Main, or nil outside a ready
// suite.
func Current() *Session {
	return current.Load()
}

// RequireClient returns the session client, failing t when there is none.
func (s *Session) RequireClient(t testing.TB) Client {
	t.Helper()
	if s == nil || s.Client == nil {
		t.Fatalf("no test session client: suite setup did not complete")
	}
	return s.Client
}

// RequireTable returns the session table, failing t when the table is
// absent. Tests that need the table call this instead of using Table
// directly.
func (s *Session) RequireTable(t testing.TB) Table {
	t.Helper()
	if s == nil {
		t.Fatalf("no test session: suite setup did not complete")
	}
	if s.Table == nil {
		t.Fatalf("%v: %s", ErrNoTable, s.TableName)
	}
	return s.Table
}

// GRPCClient returns the underlying client of a session built with
// GRPCConnector.
func (s *Session) GRPCClient(t testing.TB) *client.Client {
	t.Helper()
	u, ok := s.RequireClient(t).(interface{ Unwrap() *client.Client })
	if !ok {
		t.Fatalf("session client %T is not a gRPC client", s.Client)
	}
	return u.Unwrap()
}

// GRPCTable returns the session table as a *client.Table.
func (s *Session) GRPCTable(t testing.TB) *client.Table {
	t.Helper()
	tbl, ok := s.RequireTable(t).(*client.Table)
	if !ok {
		t.Fatalf("session table %T is not a gRPC table", s.Table)
	}
	return tbl
}
