// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/lrm2e/labsite/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the labsite CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labsite",
		Short: "labsite - research laboratory site backend",
		Long: `labsite serves the JSON API behind a research laboratory website:
accounts and sessions, role-gated administration, the contact form
and the researcher dashboard.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewHashPasswordCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the effective config for cmd, whose flag set must carry
// the keys from config.RegisterFlags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
