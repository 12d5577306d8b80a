package main

import (
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newWorkspacesCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspaces",
		Short: "List the workspaces you belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workspaces, err := d.client.ListWorkspaces(cmd.Context())
			if err != nil {
				return err
			}
			current := d.prefs.LastWorkspace()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(w, "\tID\tNAME\tROLE\n")
			for _, ws := range workspaces {
				marker := ""
				if ws.ID == current {
					marker = "*"
				}
				printf(w, "%s\t%s\t%s\t%s\n", marker, ws.ID, ws.Name, ws.Role)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "use <workspace-id>",
		Short: "Make a workspace the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := d.prefs.SetLastWorkspace(args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Current workspace: %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func newMembersCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List members of the current workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := d.workspaceID()
			if err != nil {
				return err
			}
			members, err := d.client.ListMembers(cmd.Context(), ws)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(w, "USER\tNAME\tEMAIL\tROLE\n")
			for _, m := range members {
				printf(w, "%s\t%s\t%s\t%s\n", m.UserID, m.DisplayName, m.Email, m.Role)
			}
			return w.Flush()
		},
	}
}
