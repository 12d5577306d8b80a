package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLoginCmd(d *deps) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session in the preferences file",
		Long: `Sign in with email and password. The password may also come from
MEMCHAT_PASSWORD. When no workspace is remembered yet, the first workspace
of the account becomes the current one.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("MEMCHAT_PASSWORD")
			}
			email = strings.TrimSpace(email)
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}

			ctx := cmd.Context()
			session, err := d.client.SignIn(ctx, email, password)
			if err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			out := cmd.OutOrStdout()
			printf(out, "Signed in as %s\n", session.UserName)

			if d.prefs.LastWorkspace() != "" {
				return nil
			}
			workspaces, err := d.client.ListWorkspaces(ctx)
			if err != nil || len(workspaces) == 0 {
				return err
			}
			if err := d.prefs.SetLastWorkspace(workspaces[0].ID); err != nil {
				return err
			}
			printf(out, "Current workspace: %s (%s)\n", workspaces[0].Name, workspaces[0].ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", os.Getenv("MEMCHAT_EMAIL"), "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newLogoutCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := d.client.SignOut(cmd.Context()); err != nil {
				// the local tokens are gone either way
				d.logger.Warn("server-side logout failed", zap.Error(err))
			}
			printf(cmd.OutOrStdout(), "Signed out\n")
			return nil
		},
	}
}
