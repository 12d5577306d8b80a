package main

import (
	"text/tabwriter"

	"github.com/spf13/cobra"

	"memchat/api/internal/selection"
)

func (d *deps) source() *selection.Source {
	src := selection.New(d.client,
		selection.WithCache(d.cache),
		selection.WithLogger(d.logger.Named("selection")),
	)
	src.Remember(d.prefs.LastChat())
	return src
}

func newChatsCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List chats of the current workspace, newest first",
		Long: `List chats of the current workspace, newest first. The selected chat
is marked with an asterisk: the remembered chat when it is still listed,
otherwise the newest one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := d.workspaceID()
			if err != nil {
				return err
			}
			chats, selected := d.source().Load(cmd.Context(), ws)
			if err := d.prefs.SetLastWorkspace(ws); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(w, "\tID\tTITLE\tVISIBILITY\tCREATED\n")
			for _, chat := range chats {
				marker := ""
				if chat.ID == selected {
					marker = "*"
				}
				printf(w, "%s\t%s\t%s\t%s\t%s\n", marker, chat.ID, chat.Title, chat.Visibility, chat.CreatedAt)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "select <chat-id>",
		Short: "Remember a chat as the selected one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := d.prefs.SetLastChat(args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Selected chat: %s\n", args[0])
			return nil
		},
	})
	return cmd
}

// selectedChat returns the explicit id, or whatever the selection source picks.
func (d *deps) selectedChat(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	ws, err := d.workspaceID()
	if err != nil {
		return "", err
	}
	_, selected := d.source().Load(cmd.Context(), ws)
	return selected, nil
}
