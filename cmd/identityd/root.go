// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/identity/internal/config"
)

// NewRootCmd creates the root command for the identityd CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "identityd",
		Short: "identityd - account credential and verification lifecycle",
		Long: `identityd manages account registration, email verification codes,
password resets and session tokens against a PostgreSQL account store.

Every account operation prints a single JSON object on stdout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&deps.configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newRegisterCmd(deps),
		newVerifyCmd(deps),
		newLoginCmd(deps),
		newForgotPasswordCmd(deps),
		newVerifyResetCodeCmd(deps),
		newResetPasswordCmd(deps),
		newResendCodeCmd(deps),
		newWhoamiCmd(deps),
		newListCmd(deps),
		newPurgeCmd(deps),
		newMigrateCmd(deps),
	)

	return cmd
}
