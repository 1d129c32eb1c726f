package testsession

import (
	"context"
	"errors"
	"testing"

	"github.com/LeeDigitalWorks/zaptable/pkg/testserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	testserver.ServeIfHelper()
	goleak.VerifyTestMain(m)
}

type runnerFunc func() int

func (f runnerFunc) Run() int {
	return f()
}

func TestRun_PublishesSessionDuringTests(t *testing.T) {
	h := newHarness(10942)
	o := h.orchestrator()

	var seen *Session
	code := run(context.Background(), runnerFunc(func() int {
		seen = Current()
		h.rec.add("tests")
		return 0
	}), o, goleak.IgnoreCurrent())

	assert.Equal(t, 0, code)
	require.NotNil(t, seen)
	assert.Equal(t, 10942, seen.Port)
	assert.Nil(t, Current(), "session is withdrawn after the run")
	assert.Equal(t, StateClosed, o.State())
	assert.Equal(t, []string{
		"process.start",
		"client.connect 127.0.0.1:10942",
		"client.table PUB.tbl1",
		"tests",
		"client.close",
		"process.close",
	}, h.rec.Events())
}

func TestRun_SetupFailureSkipsTests(t *testing.T) {
	h := newHarness(10942)
	h.connectErr = errors.New("connection refused")
	o := h.orchestrator()

	ran := false
	code := run(context.Background(), runnerFunc(func() int {
		ran = true
		return 0
	}), o, goleak.IgnoreCurrent())

	assert.Equal(t, 1, code)
	assert.False(t, ran)
	assert.Equal(t, 1, h.proc.closes)
	assert.Equal(t, StateClosed, o.State())
	assert.Nil(t, Current())
}

func TestRun_KeepsTestFailureCode(t *testing.T) {
	h := newHarness(10942)
	h.cli.closeErr = errors.New("close failed")

	code := run(context.Background(), runnerFunc(func() int { return 3 }), h.orchestrator(), goleak.IgnoreCurrent())
	assert.Equal(t, 3, code)
}

func TestRun_TeardownErrorFailsPassingRun(t *testing.T) {
	h := newHarness(10942)
	h.proc.closeErr = errors.New("exit status 2")

	code := run(context.Background(), runnerFunc(func() int { return 0 }), h.orchestrator(), goleak.IgnoreCurrent())
	assert.Equal(t, 1, code)
}

func TestRun_LeakFailsPassingRun(t *testing.T) {
	h := newHarness(10942)
	ignore := goleak.IgnoreCurrent()

	stop := make(chan struct{})
	defer close(stop)
	code := run(context.Background(), runnerFunc(func() int {
		go func() { <-stop }()
		return 0
	}), h.orchestrator(), ignore)

	assert.Equal(t, 1, code)
	assert.Equal(t, 1, h.proc.closes, "teardown runs before the leak check")
}

func TestRun_TeardownOnPanic(t *testing.T) {
	h := newHarness(10942)
	o := h.orchestrator()

	assert.Panics(t, func() {
		run(context.Background(), runnerFunc(func() int {
			panic("test binary panicked")
		}), o, goleak.IgnoreCurrent())
	})
	assert.Equal(t, StateClosed, o.State())
	assert.Equal(t, 1, h.cli.closes)
	assert.Equal(t, 1, h.proc.closes)
	assert.Nil(t, Current())
}
