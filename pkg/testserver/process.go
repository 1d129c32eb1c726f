// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package testserver starts a zaptable server as a child process for
// integration tests. The child announces its listeners on stdout:
//
//	LISTENING grpc 127.0.0.1:40123
//	LISTENING debug 127.0.0.1:40124
//	READY
//
// Start returns once READY has been read. Everything the child writes
// afterwards is forwarded to the logger.
package testserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zaptable/cmd"
	"github.com/LeeDigitalWorks/zaptable/pkg/logger"
	"github.com/LeeDigitalWorks/zaptable/pkg/utils"

	"github.com/rs/zerolog"
)

var (
	ErrExitedBeforeReady = errors.New("server exited before becoming ready")
	ErrReadyTimeout      = errors.New("timed out waiting for server readiness")
)

const stderrTail = 20

// Process is a running server child. The zero value and nil are valid,
// closed processes.
type Process struct {
	name string
	cmd  *exec.Cmd
	log  zerolog.Logger

	stdin       io.WriteCloser
	gracePeriod time.Duration

	ready chan struct{}
	addrs map[string]string // written before ready is closed

	readers sync.WaitGroup
	exited  chan struct{}
	waitErr error

	tailMu sync.Mutex
	tail   []string

	closeOnce sync.Once
	closeErr  error
}

// Start launches the server and waits for its readiness announcement, the
// ready timeout, or ctx, whichever comes first. A child that is not ready
// is stopped before Start returns.
func Start(ctx context.Context, opts ...Option) (*Process, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	binary, env, err := resolveBinary(o)
	if err != nil {
		return nil, err
	}

	args := []string{
		"server",
		"--bind_addr", utils.JoinHostPort(utils.Loopback, 0),
		"--debug_port", "0",
		"--announce",
		"--stdin_lifeline",
	}
	for _, t := range o.tables {
		args = append(args, "--table", t)
	}
	args = append(args, o.args...)

	c := exec.Command(binary, args...)
	c.Env = append(append(os.Environ(), env...), o.env...)
	setProcessGroup(c)

	log := logger.With("testserver")
	if o.log != nil {
		log = *o.log
	}

	p := &Process{
		name:        o.name,
		cmd:         c,
		log:         log.With().Str("process", o.name).Logger(),
		gracePeriod: o.gracePeriod,
		ready:       make(chan struct{}),
		addrs:       make(map[string]string),
		exited:      make(chan struct{}),
	}

	if p.stdin, err = c.StdinPipe(); err != nil {
		return nil, err
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}
	p.log.Debug().Int("pid", c.Process.Pid).Strs("args", args).Msg("started server process")

	p.readers.Add(2)
	go p.readStdout(stdout)
	go p.forward(stderr, "stderr", p.record)
	go func() {
		// Wait closes the pipes, so it must not run before the readers
		// have seen EOF.
		p.readers.Wait()
		p.waitErr = c.Wait()
		close(p.exited)
	}()

	timer := time.NewTimer(o.readyTimeout)
	defer timer.Stop()

	select {
	case <-p.ready:
		p.log.Info().Str("grpc", p.addrs["grpc"]).Msg("server process ready")
		return p, nil
	case <-p.exited:
		err = fmt.Errorf("%w: %v%s", ErrExitedBeforeReady, p.waitErr, p.stderrTail())
	case <-timer.C:
		err = fmt.Errorf("%w after %s", ErrReadyTimeout, o.readyTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}

	if cerr := p.Close(); cerr != nil {
		p.log.Debug().Err(cerr).Msg("stopping unready server")
	}
	return nil, err
}

func resolveBinary(o options) (string, []string, error) {
	if o.selfExec {
		self, err := os.Executable()
		if err != nil {
			return "", nil, fmt.Errorf("resolve test executable: %w", err)
		}
		return self, []string{HelperEnv + "=1"}, nil
	}
	if o.binary != "" {
		return o.binary, nil, nil
	}
	if bin := os.Getenv(BinaryEnv); bin != "" {
		return bin, nil, nil
	}
	bin, err := exec.LookPath(defaultBinary)
	if err != nil {
		return "", nil, fmt.Errorf("no server binary: set %s or put %s on PATH: %w", BinaryEnv, defaultBinary, err)
	}
	return bin, nil, nil
}

// readStdout parses the announcement, then forwards the rest.
func (p *Process) readStdout(r io.Reader) {
	defer p.readers.Done()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		switch {
		case len(fields) == 3 && fields[0] == cmd.AnnounceListening:
			p.addrs[fields[1]] = fields[2]
			continue
		case len(fields) == 1 && fields[0] == cmd.AnnounceReady:
			close(p.ready)
			p.drain(scanner, "stdout", nil)
			return
		}
		p.log.Debug().Str("stream", "stdout").Msg(line)
	}
}

func (p *Process) forward(r io.Reader, stream string, also func(string)) {
	defer p.readers.Done()
	p.drain(bufio.NewScanner(r), stream, also)
}

func (p *Process) drain(scanner *bufio.Scanner, stream string, also func(string)) {
	for scanner.Scan() {
		line := scanner.Text()
		if also != nil {
			also(line)
		}
		p.log.Debug().Str("stream", stream).Msg(line)
	}
}

// record keeps the last stderr lines for startup errors.
func (p *Process) record(line string) {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	p.tail = append(p.tail, line)
	if len(p.tail) > stderrTail {
		p.tail = p.tail[len(p.tail)-stderrTail:]
	}
}

func (p *Process) stderrTail() string {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	if len(p.tail) == 0 {
		return ""
	}
	return "\n" + strings.Join(p.tail, "\n")
}

// Addr returns the address announced for a listener name, e.g. "grpc".
func (p *Process) Addr(name string) string {
	if p == nil || p.ready == nil {
		return ""
	}
	select {
	case <-p.ready:
		return p.addrs[name]
	default:
		return ""
	}
}

// Port returns the gRPC port, or 0 before the process is ready.
func (p *Process) Port() int {
	port, err := utils.PortOf(p.Addr("grpc"))
	if err != nil {
		return 0
	}
	return port
}

func (p *Process) Pid() int {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Close stops the process: stdin is closed, then SIGTERM is sent to its
// process group, then SIGKILL after the grace period. Close is idempotent
// and safe on a nil or never-started Process.
func (p *Process) Close() error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		p.closeErr = p.stop()
	})
	return p.closeErr
}

func (p *Process) stop() error {
	start := time.Now()

	p.stdin.Close()
	if err := terminate(p.cmd); err != nil {
		p.log.Warn().Err(err).Msg("SIGTERM failed")
	}

	timer := time.NewTimer(p.gracePeriod)
	defer timer.Stop()
	select {
	case <-p.exited:
	case <-timer.C:
		p.log.Warn().Dur("grace_period", p.gracePeriod).Msg("server ignored SIGTERM, killing")
		if err := kill(p.cmd); err != nil {
			p.log.Warn().Err(err).Msg("SIGKILL failed")
		}
		<-p.exited
	}

	p.log.Info().Dur("took", time.Since(start)).Msg("server process stopped")

	if p.waitErr == nil || isSignalExit(p.waitErr) {
		return nil
	}
	return fmt.Errorf("server process %s: %w", p.name, p.waitErr)
}

// ServeIfHelper runs the server command and exits when the current process
// was started through WithSelfExec. Call it first in TestMain.
func ServeIfHelper() {
	if !InHelperProcess() {
		return
	}
	os.Exit(cmd.Run(os.Args[1:]))
}

// InHelperProcess reports whether this process was started by WithSelfExec.
func InHelperProcess() bool {
	return os.Getenv(HelperEnv) == "1"
}
