// Package selection loads the chats a user can pick from in a workspace and
// decides which one is selected by default.
package selection

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"memchat/api/internal/cache"
	"memchat/api/internal/client"
	"memchat/api/internal/logging"
)

// DefaultLimit is the chat list page size requested from the server.
const DefaultLimit = 100

// reservedTitles never appear in the selectable list.
var reservedTitles = map[string]struct{}{
	"profile": {},
}

type ChatLister interface {
	ListChats(ctx context.Context, workspaceID string, limit int) ([]client.Chat, error)
}

type Source struct {
	chats  ChatLister
	cache  cache.Store
	logger *zap.Logger
	limit  int
	now    func() time.Time

	mu         sync.Mutex
	remembered string
}

type Option func(*Source)

// WithCache primes the shared history keys after every successful fetch.
func WithCache(store cache.Store) Option {
	return func(s *Source) { s.cache = store }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) { s.logger = logging.OrNop(logger) }
}

func WithLimit(limit int) Option {
	return func(s *Source) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

func New(chats ChatLister, opts ...Option) *Source {
	s := &Source{
		chats:  chats,
		logger: zap.NewNop(),
		limit:  DefaultLimit,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Remember sets the id preferred on the next Load.
func (s *Source) Remember(chatID string) {
	s.mu.Lock()
	s.remembered = chatID
	s.mu.Unlock()
}

// Load returns the selectable chats of a workspace, newest first, and the
// selected id. An empty workspace makes no request. A failed request is
// logged and yields an empty list.
func (s *Source) Load(ctx context.Context, workspaceID string) ([]client.Chat, string) {
	if workspaceID == "" {
		return []client.Chat{}, ""
	}
	chats, err := s.chats.ListChats(ctx, workspaceID, s.limit)
	if err != nil {
		if !errors.Is(err, client.ErrMissingSelection) {
			s.logger.Warn("list chats failed", zap.String("workspace_id", workspaceID), zap.Error(err))
		}
		return []client.Chat{}, ""
	}
	s.prime(ctx, workspaceID, chats)

	visible := Arrange(chats)

	s.mu.Lock()
	remembered := s.remembered
	s.mu.Unlock()
	return visible, pick(visible, remembered)
}

// prime records the unfiltered list so visibility lookups see every chat.
func (s *Source) prime(ctx context.Context, workspaceID string, chats []client.Chat) {
	if s.cache == nil {
		return
	}
	history := cache.History{WorkspaceID: workspaceID, Chats: chats, FetchedAt: s.now().UTC()}
	for _, key := range []string{cache.HistoryKey, cache.HistoryPageKey(workspaceID)} {
		if err := s.cache.Set(ctx, key, history, 0); err != nil {
			s.logger.Warn("prime chat history failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Arrange drops reserved chats and orders the rest newest first. Chats whose
// timestamps do not parse rank equal to each other, after every dated chat.
func Arrange(chats []client.Chat) []client.Chat {
	out := make([]client.Chat, 0, len(chats))
	for _, chat := range chats {
		if reserved(chat.Title) {
			continue
		}
		out = append(out, chat)
	}
	slices.SortStableFunc(out, func(a, b client.Chat) int {
		return parseCreatedAt(b.CreatedAt).Compare(parseCreatedAt(a.CreatedAt))
	})
	return out
}

func reserved(title string) bool {
	_, ok := reservedTitles[strings.ToLower(strings.TrimSpace(title))]
	return ok
}

// parseCreatedAt maps unparsable values to the zero time.
func parseCreatedAt(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func pick(chats []client.Chat, remembered string) string {
	if len(chats) == 0 {
		return ""
	}
	if remembered != "" {
		for _, chat := range chats {
			if chat.ID == remembered {
				return remembered
			}
		}
	}
	return chats[0].ID
}
