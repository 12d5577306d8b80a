package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"memchat/api/internal/loader"
)

func newDocumentsCmd(d *deps) *cobra.Command {
	var pages int
	var all bool
	cmd := &cobra.Command{
		Use:   "documents [chat-id]",
		Short: "List a chat's documents, newest first",
		Long: `List a chat's documents, newest first. Without a chat id the selected
chat of the current workspace is used.

The first page holds 500 documents, every further page 100. Page numbers
keep counting from the first page, so the next few smaller pages cover
documents that are already loaded and add nothing. --pages counts only
pages that added documents, the first one included.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := d.selectedChat(cmd, args)
			if err != nil {
				return err
			}
			if chatID == "" {
				return errors.New("no chat to show: the workspace has no chats")
			}

			l := loader.New(d.client, loader.WithLogger(d.logger.Named("loader")))
			l.SetSelection(chatID)
			state := l.LoadInitial(cmd.Context())
			if state.Err != nil {
				return fmt.Errorf("load documents: %w", state.Err)
			}
			switch {
			case all:
				state = l.LoadAll(cmd.Context(), 0)
			case pages > 1:
				state = l.LoadAll(cmd.Context(), pages)
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			printf(w, "ID\tTYPE\tTITLE\tCREATED\n")
			for _, doc := range state.Items {
				printf(w, "%s\t%s\t%s\t%s\n", doc.ID, doc.Type, doc.Title, doc.CreatedAt.Format("2006-01-02 15:04"))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if state.HasMore {
				printf(out, "\n%d documents loaded, more available (use --pages or --all)\n", len(state.Items))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 1, "number of pages that add documents to load")
	cmd.Flags().BoolVar(&all, "all", false, "load every page")
	return cmd
}
