// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package testsession

import (
	"context"
	"testing"

	"github.com/LeeDigitalWorks/zaptable/pkg/testserver"

	"go.uber.org/goleak"
)

// runner is the part of *testing.M that Main uses.
type runner interface {
	Run() int
}

// Main runs a suite around o and returns the exit code for os.Exit:
//
//	func TestMain(m *testing.M) {
//		o := testsession.New(testsession.ServerStarter(testserver.WithSelfExec()), testsession.GRPCConnector())
//		os.Exit(testsession.Main(m, o))
//	}
//
// When setup fails no test runs and the code is 1. Teardown always runs,
// then the goroutine leak check with opts; a teardown error or a leak fails
// an otherwise passing run. A process re-executed by WithSelfExec serves
// instead and never returns.
func Main(m *testing.M, o *Orchestrator, opts ...goleak.Option) int {
	testserver.ServeIfHelper()
	return run(context.Background(), m, o, opts...)
}

func run(ctx context.Context, m runner, o *Orchestrator, opts ...goleak.Option) (code int) {
	defer func() {
		current.Store(nil)
		if err := o.Teardown(); err != nil {
			o.log.Error().Err(err).Msg("suite teardown failed")
			if code == 0 {
				code = 1
			}
		}
		if err := goleak.Find(opts...); err != nil {
			o.log.Error().Err(err).Msg("goroutines leaked after teardown")
			if code == 0 {
				code = 1
			}
		}
	}()

	s, err := o.Setup(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("suite setup failed, no tests will run")
		return 1
	}
	current.Store(s)
	return m.Run()
}
