// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package testsession

// State is the lifecycle position of an Orchestrator.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	// StateFailed means setup aborted and teardown has not run yet.
	StateFailed
	StateTearingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateTearingDown:
		return "tearing_down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// option holds a handle that is either present or absent.
type option[T any] struct {
	value T
	ok    bool
}

func some[T any](v T) option[T] {
	return option[T]{value: v, ok: true}
}

func none[T any]() option[T] {
	return option[T]{}
}

func (o option[T]) get() (T, bool) {
	return o.value, o.ok
}
