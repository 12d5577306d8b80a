// Package visibility resolves and updates whether a chat is public or private.
//
// The shared chat history is authoritative once it is cached. Writes are
// optimistic: the local value changes immediately and the server is told in
// the background, best-effort, with no delivery guarantee.
package visibility

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"memchat/api/internal/cache"
	"memchat/api/internal/client"
	"memchat/api/internal/logging"
)

// DefaultVisibility applies when nothing else knows about a chat.
const DefaultVisibility = client.VisibilityPrivate

const defaultPersistTimeout = 15 * time.Second

// Origin says which source decided a resolved value.
type Origin string

const (
	OriginHistory Origin = "history"
	OriginLocal   Origin = "local"
	OriginDefault Origin = "default"
)

type State struct {
	ChatID     string
	Visibility client.Visibility
	Origin     Origin
}

type Persister interface {
	SetChatVisibility(ctx context.Context, chatID string, visibility client.Visibility) (client.Chat, error)
}

// WorkspacePrefs supplies the device's last used workspace.
type WorkspacePrefs interface {
	LastWorkspace() string
}

type Synchronizer struct {
	cache     cache.Store
	persister Persister
	prefs     WorkspacePrefs
	logger    *zap.Logger
	timeout   time.Duration

	mu    sync.RWMutex
	local map[string]client.Visibility
}

type Option func(*Synchronizer)

func WithPrefs(prefs WorkspacePrefs) Option {
	return func(s *Synchronizer) { s.prefs = prefs }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = logging.OrNop(logger) }
}

// WithPersistTimeout bounds each background persistence call.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(store cache.Store, persister Persister, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		cache:     store,
		persister: persister,
		logger:    zap.NewNop(),
		timeout:   defaultPersistTimeout,
		local:     make(map[string]client.Visibility),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get resolves chatID's visibility. A cached history that lacks the chat
// resolves to DefaultVisibility, ignoring any local value.
func (s *Synchronizer) Get(ctx context.Context, chatID string) State {
	if history, ok := s.history(ctx); ok {
		if chat, found := history.Find(chatID); found && chat.Visibility.Valid() {
			return State{ChatID: chatID, Visibility: chat.Visibility, Origin: OriginHistory}
		}
		return State{ChatID: chatID, Visibility: DefaultVisibility, Origin: OriginDefault}
	}

	s.mu.RLock()
	value, ok := s.local[chatID]
	s.mu.RUnlock()
	if ok {
		return State{ChatID: chatID, Visibility: value, Origin: OriginLocal}
	}
	return State{ChatID: chatID, Visibility: DefaultVisibility, Origin: OriginDefault}
}

// Set records value locally, invalidates the owning workspace's history page
// and persists in the background. It returns before persistence finishes.
func (s *Synchronizer) Set(ctx context.Context, chatID string, value client.Visibility, workspaceID string) {
	if chatID == "" {
		return
	}
	if !value.Valid() {
		s.logger.Warn("ignoring invalid visibility", zap.String("chat_id", chatID), zap.String("visibility", string(value)))
		return
	}

	s.mu.Lock()
	s.local[chatID] = value
	s.mu.Unlock()

	if ws := s.resolveWorkspace(ctx, chatID, workspaceID); ws != "" && s.cache != nil {
		if err := s.cache.Mutate(ctx, cache.HistoryPageKey(ws)); err != nil {
			s.logger.Warn("invalidate chat history failed", zap.String("workspace_id", ws), zap.Error(err))
		}
	}

	go s.persist(context.WithoutCancel(ctx), chatID, value)
}

func (s *Synchronizer) persist(ctx context.Context, chatID string, value client.Visibility) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.persister.SetChatVisibility(ctx, chatID, value); err != nil {
		s.logger.Warn("persist visibility failed",
			zap.String("chat_id", chatID),
			zap.String("visibility", string(value)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("visibility persisted", zap.String("chat_id", chatID), zap.String("visibility", string(value)))
}

// resolveWorkspace tries the explicit id, the chat's cached record, then prefs.
func (s *Synchronizer) resolveWorkspace(ctx context.Context, chatID, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if history, ok := s.history(ctx); ok {
		if chat, found := history.Find(chatID); found {
			if chat.WorkspaceID != "" {
				return chat.WorkspaceID
			}
			if history.WorkspaceID != "" {
				return history.WorkspaceID
			}
		}
	}
	if s.prefs != nil {
		return s.prefs.LastWorkspace()
	}
	return ""
}

func (s *Synchronizer) history(ctx context.Context) (cache.History, bool) {
	if s.cache == nil {
		return cache.History{}, false
	}
	var history cache.History
	ok, err := s.cache.Get(ctx, cache.HistoryKey, &history)
	if err != nil {
		s.logger.Warn("read chat history failed", zap.Error(err))
		return cache.History{}, false
	}
	return history, ok
}
