package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"memchat/api/internal/client"
	"memchat/api/internal/visibility"
)

// notifyingPersister reports when the synchronizer's background write ends,
// so the process does not exit under it.
type notifyingPersister struct {
	next visibility.Persister
	done chan error
}

func (p *notifyingPersister) SetChatVisibility(ctx context.Context, chatID string, value client.Visibility) (client.Chat, error) {
	chat, err := p.next.SetChatVisibility(ctx, chatID, value)
	p.done <- err
	return chat, err
}

func newVisibilityCmd(d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visibility",
		Short: "Show or change who can see a chat",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [chat-id]",
		Short: "Show a chat's visibility",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := d.selectedChat(cmd, args)
			if err != nil {
				return err
			}
			if ws, _ := d.workspaceID(); ws != "" && len(args) > 0 {
				// refresh the shared history so the lookup sees the server's value
				d.source().Load(cmd.Context(), ws)
			}
			syncer := visibility.New(d.cache, d.client,
				visibility.WithPrefs(d.prefs),
				visibility.WithLogger(d.logger.Named("visibility")),
			)
			state := syncer.Get(cmd.Context(), chatID)
			printf(cmd.OutOrStdout(), "%s\t%s\t(%s)\n", state.ChatID, state.Visibility, state.Origin)
			return nil
		},
	})

	var wait time.Duration
	set := &cobra.Command{
		Use:   "set <chat-id> <private|public>",
		Short: "Change a chat's visibility",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID := args[0]
			value := client.Visibility(strings.ToLower(strings.TrimSpace(args[1])))
			if !value.Valid() {
				return fmt.Errorf("visibility must be private or public, got %q", args[1])
			}
			if wait <= 0 {
				return fmt.Errorf("--wait must be positive, got %s", wait)
			}

			persister := &notifyingPersister{next: d.client, done: make(chan error, 1)}
			syncer := visibility.New(d.cache, persister,
				visibility.WithPrefs(d.prefs),
				visibility.WithLogger(d.logger.Named("visibility")),
				visibility.WithPersistTimeout(wait),
			)
			ws, _ := d.workspaceID()
			syncer.Set(cmd.Context(), chatID, value, ws)

			select {
			case err := <-persister.done:
				if err != nil {
					return fmt.Errorf("save visibility: %w", err)
				}
			case <-time.After(wait + time.Second):
				return fmt.Errorf("save visibility: no answer within %s", wait)
			}
			printf(cmd.OutOrStdout(), "%s is now %s\n", chatID, value)
			return nil
		},
	}
	set.Flags().DurationVar(&wait, "wait", 15*time.Second, "how long to wait for the server to confirm")
	cmd.AddCommand(set)
	return cmd
}
