// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package testsession runs the one-time setup and teardown of an
// integration test suite against a zaptable server: start the server
// process, connect a client to it, resolve the suite's table, and on
// completion close the client and then the process.
package testsession

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/LeeDigitalWorks/zaptable/pkg/client"
	"github.com/LeeDigitalWorks/zaptable/pkg/logger"
	"github.com/LeeDigitalWorks/zaptable/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fixed identifiers of the suite table.
const (
	TableName = "PUB.tbl1"
	KeyCol    = "key"
	ValCol    = "val"
)

// Process is a started server.
type Process interface {
	// Port is the bound port once started.
	Port() int
	Close() error
}

// ProcessStarter starts a server and returns once it is ready.
type ProcessStarter interface {
	Start(ctx context.Context) (Process, error)
}

// Client is a connected client session.
type Client interface {
	// Table returns nil and no error when there is no such table.
	Table(ctx context.Context, name string) (Table, error)
	Close() error
}

// Table is opaque to the orchestrator.
type Table interface {
	Name() string
}

// Connector starts client sessions.
type Connector interface {
	Connect(ctx context.Context, cfg client.Config) (Client, error)
}

// Orchestrator sequences the suite lifecycle. It is driven by a single
// goroutine (the test binary's TestMain) and is not safe for concurrent use.
type Orchestrator struct {
	starter   ProcessStarter
	connector Connector

	tableName string
	host      string
	id        uuid.UUID
	log       zerolog.Logger

	state     State
	startedAt time.Time

	process option[Process]
	client  option[Client]
	table   option[Table]
	// resolved is set once the table lookup completed, even when the
	// table turned out to be absent.
	resolved bool

	session *Session
}

type Option func(*Orchestrator)

// WithTableName overrides TableName.
func WithTableName(name string) Option {
	return func(o *Orchestrator) {
		o.tableName = name
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithHost overrides the loopback host used to build the endpoint.
func WithHost(host string) Option {
	return func(o *Orchestrator) {
		o.host = host
	}
}

// New returns an orchestrator with every handle absent.
func New(starter ProcessStarter, connector Connector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		starter:   starter,
		connector: connector,
		tableName: TableName,
		host:      utils.Loopback,
		id:        uuid.New(),
		log:       logger.With("testsession"),
		state:     StateUninitialized,
		process:   none[Process](),
		client:    none[Client](),
		table:     none[Table](),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With().Str("session_id", o.id.String()).Logger()
	return o
}

// Setup starts the process, connects the client and resolves the table, in
// that order. The first failure aborts setup and is returned as a
// *SetupError; nothing is retried and ctx is the only bound on the wait.
// Whatever was acquired stays held until Teardown.
func (o *Orchestrator) Setup(ctx context.Context) (*Session, error) {
	switch o.state {
	case StateUninitialized:
	case StateClosed:
		return nil, ErrClosed
	default:
		return nil, ErrAlreadyStarted
	}
	o.state = StateStarting
	o.startedAt = time.Now()

	proc, err := o.starter.Start(ctx)
	if err == nil && proc == nil {
		err = errors.New("starter returned no process")
	}
	if err != nil {
		return nil, o.fail(StepStart, err)
	}
	o.process = some(proc)

	port := proc.Port()
	cfg := o.configFor(port)
	o.log.Info().Strs("endpoints", cfg.Endpoints).Msg("server process ready")

	c, err := o.connector.Connect(ctx, cfg)
	if err == nil && c == nil {
		err = errors.New("connector returned no client")
	}
	if err != nil {
		return nil, o.fail(StepConnect, err)
	}
	o.client = some(c)

	tbl, err := c.Table(ctx, o.tableName)
	if err != nil {
		return nil, o.fail(StepLookup, err)
	}
	if tbl != nil {
		o.table = some(tbl)
	}
	o.resolved = true

	o.state = StateReady
	o.session = &Session{
		Client:    c,
		Table:     tbl,
		TableName: o.tableName,
		Port:      port,
		Endpoint:  cfg.Endpoints[0],
		Config:    cfg,
		ID:        o.id,
		StartedAt: o.startedAt,
	}

	o.log.Info().
		Str("table", o.tableName).
		Bool("table_found", tbl != nil).
		Dur("took", time.Since(o.startedAt)).
		Msg("session ready")
	return o.session, nil
}

func (o *Orchestrator) fail(step Step, err error) error {
	o.state = StateFailed
	serr := &SetupError{Step: step, Err: err}
	o.log.Error().Err(err).Str("step", string(step)).Msg("session setup failed")
	return serr
}

// Teardown closes the client, then the process, skipping absent handles.
// A failure in one step does not stop the next; failures are logged and
// joined. Only the first call does anything.
func (o *Orchestrator) Teardown() error {
	switch o.state {
	case StateTearingDown, StateClosed:
		return nil
	}
	from := o.state
	o.state = StateTearingDown

	var errs []error
	if c, ok := o.client.get(); ok {
		o.client = none[Client]()
		o.table = none[Table]()
		if err := dispose("client", c.Close); err != nil {
			o.log.Error().Err(err).Msg("failed to close client")
			errs = append(errs, err)
		}
	}
	if p, ok := o.process.get(); ok {
		if err := dispose("process", p.Close); err != nil {
			o.log.Error().Err(err).Msg("failed to close server process")
			errs = append(errs, err)
		}
	}

	o.state = StateClosed
	o.session = nil

	ev := o.log.Info().Str("from", from.String())
	if !o.startedAt.IsZero() {
		ev = ev.Str("lifetime", humanize.RelTime(o.startedAt, time.Now(), "", ""))
	}
	ev.Int("errors", len(errs)).Msg("session closed")
	return errors.Join(errs...)
}

// dispose runs a close function, turning a panic into an error.
func dispose(what string, closeFn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close %s: panic: %v", what, r)
		}
	}()
	if err := closeFn(); err != nil {
		return fmt.Errorf("close %s: %w", what, err)
	}
	return nil
}

// CurrentPort returns the port of the process handle, or 0 without one.
// It is read from the handle on every call.
func (o *Orchestrator) CurrentPort() int {
	p, ok := o.process.get()
	if !ok {
		return 0
	}
	return p.Port()
}

// Endpoint returns the loopback endpoint of the current port.
func (o *Orchestrator) Endpoint() string {
	return o.endpointFor(o.CurrentPort())
}

// Config returns the client configuration for the current port.
func (o *Orchestrator) Config() client.Config {
	return o.configFor(o.CurrentPort())
}

func (o *Orchestrator) endpointFor(port int) string {
	return o.host + ":" + strconv.Itoa(port)
}

func (o *Orchestrator) configFor(port int) client.Config {
	return client.NewConfig(o.endpointFor(port))
}

func (o *Orchestrator) State() State {
	return o.state
}

// Session returns the published session, or nil unless the state is
// StateReady.
func (o *Orchestrator) Session() *Session {
	if o.state != StateReady {
		return nil
	}
	return o.session
}

// ID identifies the suite run in logs.
func (o *Orchestrator) ID() uuid.UUID {
	return o.id
}

// TableResolved reports whether the table lookup completed; the table may
// still be absent.
func (o *Orchestrator) TableResolved() bool {
	return o.resolved
}

// HasClient reports whether a client handle is held.
func (o *Orchestrator) HasClient() bool {
	_, ok := o.client.get()
	return ok
}

// HasTable reports whether a table handle is held.
func (o *Orchestrator) HasTable() bool {
	_, ok := o.table.get()
	return ok
}
