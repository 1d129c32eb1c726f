// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/LeeDigitalWorks/zaptable/pkg/logger"
	"github.com/LeeDigitalWorks/zaptable/pkg/utils"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the zaptable command tree. Each call returns a fresh
// tree, so a process can run more than one command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zaptable",
		Short: "ZapTable - a small key/value table server",
		Long: `ZapTable serves named key/value tables over gRPC.
It is built to be started as a child process by integration test suites,
which read its readiness announcement from stdout.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")

	rootCmd.AddCommand(newServerCommand())
	addVersion(rootCmd)
	return rootCmd
}

// Run executes the command line args and returns the process exit code.
func Run(args []string) int {
	return RunContext(context.Background(), args)
}

func RunContext(ctx context.Context, args []string) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("command failed")
		return 1
	}
	return 0
}
