// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/audit"
	"github.com/holomush/authcore/internal/auth"
)

func newRevokeCmd(deps *Deps) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke every session of an account",
		Long: `Revoke all refresh tokens of the account with the given email. Access
tokens already issued stay valid until they expire.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, deps, func(ctx context.Context, svc *service, _ *slog.Logger) error {
				p, err := lookupPrincipal(ctx, svc, email)
				if err != nil {
					return err
				}
				n, err := svc.orchestrator.LogoutAll(ctx, p.ID, auth.RequestMeta{UserAgent: "authcore-cli"})
				if err != nil {
					return err
				}
				cmd.Printf("Revoked %d session(s) for %s\n", n, p.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSessionsCmd(deps *Deps) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the live sessions of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, deps, func(ctx context.Context, svc *service, _ *slog.Logger) error {
				p, err := lookupPrincipal(ctx, svc, email)
				if err != nil {
					return err
				}
				sessions, err := svc.orchestrator.Sessions(ctx, p.ID)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					cmd.Printf("No live sessions for %s\n", p.Email)
					return nil
				}
				for _, s := range sessions {
					cmd.Printf("%s  family=%s  issued=%s  expires=%s  ip=%s  agent=%q\n",
						s.ID, s.FamilyID,
						s.IssuedAt.UTC().Format(time.RFC3339),
						s.ExpiresAt.UTC().Format(time.RFC3339),
						orDash(s.IPAddress), s.UserAgent)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func lookupPrincipal(ctx context.Context, svc *service, email string) (*auth.Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, oops.Code(auth.CodeValidationFailed).Errorf("--email is required")
	}
	p, err := svc.principals.GetByEmail(ctx, email)
	if err != nil {
		return nil, oops.With("email", audit.MaskEmail(email)).Wrap(err)
	}
	return p, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
