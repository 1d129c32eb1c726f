//go:build integration

package testutil

import (
	"time"

	"github.com/LeeDigitalWorks/zaptable/pkg/testserver"
	"github.com/LeeDigitalWorks/zaptable/pkg/testsession"
)

// SuiteConfig selects how the integration suite runs its server.
type SuiteConfig struct {
	// Binary is a prebuilt server. Empty re-executes the test binary.
	Binary string
	// Engine, DataDir and RedisAddr are passed through as server flags.
	Engine    string
	DataDir   string
	RedisAddr string

	ReadyTimeout time.Duration
}

// DefaultConfig reads the suite configuration from the environment.
func DefaultConfig() SuiteConfig {
	timeout, err := time.ParseDuration(GetEnv("ZAPTABLE_READY_TIMEOUT", "30s"))
	if err != nil {
		timeout = testserver.DefaultReadyTimeout
	}
	return SuiteConfig{
		Binary:       GetEnv(testserver.BinaryEnv, ""),
		Engine:       GetEnv("ZAPTABLE_ENGINE", "memory"),
		DataDir:      GetEnv("ZAPTABLE_DATA_DIR", ""),
		RedisAddr:    GetEnv("ZAPTABLE_REDIS_ADDR", ""),
		ReadyTimeout: timeout,
	}
}

// Config is the suite configuration of this run.
var Config = DefaultConfig()

// ServerOptions translates c into testserver options.
func (c SuiteConfig) ServerOptions() []testserver.Option {
	opts := []testserver.Option{
		testserver.WithName("integration"),
		testserver.WithReadyTimeout(c.ReadyTimeout),
		testserver.WithArgs("--engine", c.Engine),
	}
	if c.Binary != "" {
		opts = append(opts, testserver.WithBinary(c.Binary))
	} else {
		opts = append(opts, testserver.WithSelfExec())
	}
	if c.DataDir != "" {
		opts = append(opts, testserver.WithArgs("--data_dir", c.DataDir))
	}
	if c.RedisAddr != "" {
		opts = append(opts, testserver.WithArgs("--redis_addr", c.RedisAddr))
	}
	return opts
}

// NewOrchestrator returns the suite orchestrator for c.
func (c SuiteConfig) NewOrchestrator() *testsession.Orchestrator {
	return testsession.New(testsession.ServerStarter(c.ServerOptions()...), testsession.GRPCConnector())
}
