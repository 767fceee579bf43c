// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lrm2e/labsite/internal/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand.
func NewHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin",
		Long: `Read a single line from stdin and print its argon2id hash in the
format stored for user accounts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHashPassword(cmd, auth.NewArgon2idHasher())
		},
	}
}

func runHashPassword(cmd *cobra.Command, hasher auth.PasswordHasher) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return oops.Code("HASH_NO_INPUT").Errorf("no password on stdin")
	}
	password := strings.TrimRight(line, "\r\n")

	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return err
}
