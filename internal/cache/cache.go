// Package cache is the shared store of previously fetched resource lists.
//
// Values are stored JSON-encoded so the in-process and Redis stores behave
// the same. Mutate invalidates a key; whoever owns the key re-fetches it the
// next time it needs it.
package cache

import (
	"context"
	"time"

	"memchat/api/internal/client"
)

// HistoryKey holds the most recently fetched chat history list.
const HistoryKey = "/api/chats"

// HistoryPageKey is the paginated history key for one workspace.
func HistoryPageKey(workspaceID string) string {
	return "$inf$" + HistoryKey + "?workspaceId=" + workspaceID
}

type Store interface {
	// Get decodes the value at key into dst and reports whether it was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stores value at key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Mutate invalidates key.
	Mutate(ctx context.Context, key string) error
}

// History is the cached chat list of one workspace.
type History struct {
	WorkspaceID string        `json:"workspaceId"`
	Chats       []client.Chat `json:"chats"`
	FetchedAt   time.Time     `json:"fetchedAt"`
}

// Find returns the chat with id, if the history holds it.
func (h History) Find(id string) (client.Chat, bool) {
	for _, chat := range h.Chats {
		if chat.ID == id {
			return chat, true
		}
	}
	return client.Chat{}, false
}
