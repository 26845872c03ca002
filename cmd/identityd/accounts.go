// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/identity/internal/auth"
)

// secretFlag is a password that may come from a flag or from stdin.
type secretFlag struct {
	name      string
	value     string
	fromStdin bool
}

func addSecretFlag(cmd *cobra.Command, s *secretFlag, usage string) {
	cmd.Flags().StringVar(&s.value, s.name, "", usage)
	cmd.Flags().BoolVar(&s.fromStdin, s.name+"-stdin", false, "read "+s.name+" from the first line of stdin")
}

// resolve returns the secret, reading stdin when requested.
func (s *secretFlag) resolve(cmd *cobra.Command) (string, error) {
	if !s.fromStdin {
		return s.value, nil
	}
	if s.value != "" {
		return "", oops.Code("INVALID_ARGUMENTS").
			Errorf("--%s and --%s-stdin are mutually exclusive", s.name, s.name)
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", oops.Code("INVALID_ARGUMENTS").With("flag", s.name+"-stdin").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newRegisterCmd(deps *Deps) *cobra.Command {
	var reg auth.Registration
	password := &secretFlag{name: "password"}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an unverified account and send a verification code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := password.resolve(cmd)
			if err != nil {
				return err
			}
			reg.Password = pw
			return deps.runOperation(cmd, func(ctx context.Context, svc *auth.Service) (result, error) {
				token, err := svc.Register(ctx, reg)
				return result{Token: token}, err
			})
		},
	}

	cmd.Flags().StringVar(&reg.Name, "name", "", "display name")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address")
	cmd.Flags().StringVar(&reg.Phone, "phone", "", "phone number")
	addSecretFlag(cmd, password, "account password")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newVerifyCmd(deps *Deps) *cobra.Command {
	var token, code string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Confirm an email address with the emailed code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.runOperation(cmd, func(ctx context.Context, svc *auth.Service) (result, error) {
				return result{}, svc.Verify(ctx, token, code)
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "verification token from register or resend-code")
	cmd.Flags().StringVar(&code, "code", "", "emailed verification code")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("code")

	return cmd
}

func newLoginCmd(deps *Deps) *cobra.Command {
	var email string
	password := &secretFlag{name: "password"}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange email and password for a session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := password.resolve(cmd)
			if err != nil {
				return err
			}
			return deps.runOperation(cmd, func(ctx context.Context, svc *auth.Service) (result, error) {
				token, err := svc.Login(ctx, email, pw)
				return result{Token: token}, err
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	addSecretFlag(cmd, password, "account password")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newForgotPasswordCmd(deps *Deps) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Send a password reset code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.runOperation(cmd, func(ctx context.Context, svc *auth.Service) (result, error) {
				token, err := svc.ForgotPassword(ctx, email)
				return result{Token: token}, err
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newVerifyResetCodeCmd(deps *Deps) *cobra.Command {
	var token, code string

	cmd := &cobra.Command{
		Use:   "verify-reset-code",
		Short: "Exchange a reset request token and code for a reset token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.runOperation(cmd, func(ctx context.Context, svc *auth.Service) (result, error) {
				resetToken, err := svc.VerifyResetCode(ctx, token, code)
				return result{Token: resetToken}, err
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "token from forgot-password")
	cmd.Flags().StringVar(&code, "code", "", "emailed reset code")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("code")

	return cmd
}

func newResetPasswordCmd(deps *Deps) *cobra.Command {
	var token string
	password := &secretFlag{name: "new-password"}

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password using a reset token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := password.resolve(cmd)
			if err != nil {
				return err
			}
			return deps.runOperation(cmd, func(ctx context.Context, svc *auth.Service) (result, error) {
				return result{}, svc.ResetPassword(ctx, token, pw)
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "token from verify-reset-code")
	addSecretFlag(cmd, password, "new account password")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

func newResendCodeCmd(deps *Deps) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "resend-code",
		Short: "Send a fresh verification code",
		Long: `Send a fresh verification code. The token from register may be
expired; resends are throttled per account.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.runOperation(cmd, func(ctx context.Context, svc *auth.Service) (result, error) {
				newToken, err := svc.ResendVerificationCode(ctx, token)
				return result{Token: newToken}, err
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "verification token from register or a previous resend")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

func newWhoamiCmd(deps *Deps) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the account behind a session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.runOperation(cmd, func(ctx context.Context, svc *auth.Service) (result, error) {
				account, err := svc.ValidateSession(ctx, token)
				if err != nil {
					return result{}, err
				}
				return result{Account: viewOf(account)}, nil
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "session token from login")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

func newListCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every account without credentials or codes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deps.runOperation(cmd, func(ctx context.Context, svc *auth.Service) (result, error) {
				accounts, err := svc.ListAccounts(ctx)
				if err != nil {
					return result{}, err
				}
				views := make([]accountView, 0, len(accounts))
				for _, a := range accounts {
					views = append(views, *viewOf(a))
				}
				count := int64(len(views))
				return result{Count: &count, Accounts: views}, nil
			})
		},
	}
}

func newPurgeCmd(deps *Deps) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("purge deletes every account; pass --yes to confirm")
			}
			return deps.runOperation(cmd, func(ctx context.Context, svc *auth.Service) (result, error) {
				count, err := svc.PurgeAccounts(ctx)
				return result{Count: &count}, err
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm deletion")

	return cmd
}
