// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package testsession

import (
	"errors"
	"fmt"
)

var (
	// ErrStartup: the server process failed to start or never became ready.
	ErrStartup = errors.New("server startup failed")
	// ErrConnect: the client could not connect to the reported port.
	ErrConnect = errors.New("client connection failed")
	// ErrLookup: the table lookup itself failed. An absent table is not
	// an error.
	ErrLookup = errors.New("table lookup failed")

	ErrAlreadyStarted = errors.New("session setup already ran")
	ErrClosed         = errors.New("session is closed")
	ErrNoTable        = errors.New("table is absent")
)

// Step names a setup step.
type Step string

const (
	StepStart   Step = "start"
	StepConnect Step = "connect"
	StepLookup  Step = "lookup"
)

func (s Step) sentinel() error {
	switch s {
	case StepStart:
		return ErrStartup
	case StepConnect:
		return ErrConnect
	default:
		return ErrLookup
	}
}

// SetupError reports the setup step that aborted a session.
type SetupError struct {
	Step Step
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("session setup: %s: %v", e.Step.sentinel(), e.Err)
}

func (e *SetupError) Unwrap() []error {
	return []error{e.Step.sentinel(), e.Err}
}
