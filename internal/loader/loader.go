// Package loader accumulates a chat's documents page by page for the graph view.
//
// The first page is requested wide so the graph can render at once; later
// pages are narrower appends. Initial failures are reported through
// State.Err. Failures while loading more are logged and leave the loaded
// documents untouched.
package loader

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"memchat/api/internal/client"
	"memchat/api/internal/logging"
)

const (
	InitialPageSize = 500
	MorePageSize    = 100
)

// Fetcher is the paged documents source. *client.Client satisfies it.
type Fetcher interface {
	FetchDocumentsE(ctx context.Context, chatID string, page, limit int) (client.DocumentPage, error)
}

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseLoadingInitial Phase = "loading-initial"
	PhaseReady          Phase = "ready"
	PhaseLoadingMore    Phase = "loading-more"
	PhaseErrored        Phase = "errored"
)

// State is a snapshot; Items is a copy the caller may keep.
type State struct {
	ChatID        string
	Phase         Phase
	Items         []client.Document
	Page          int
	HasMore       bool
	IsLoading     bool
	IsLoadingMore bool
	Err           error
}

type Loader struct {
	fetcher     Fetcher
	logger      *zap.Logger
	initialSize int
	moreSize    int

	mu         sync.Mutex
	generation uint64
	state      State
	seen       map[string]struct{}
}

type Option func(*Loader)

// WithPageSizes overrides the initial and follow-up page sizes.
func WithPageSizes(initial, more int) Option {
	return func(l *Loader) {
		if initial > 0 {
			l.initialSize = initial
		}
		if more > 0 {
			l.moreSize = more
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logging.OrNop(logger) }
}

func New(fetcher Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetcher:     fetcher,
		logger:      zap.NewNop(),
		initialSize: InitialPageSize,
		moreSize:    MorePageSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.resetLocked("")
	return l
}

// SetSelection switches to another chat. Any state for the previous chat is
// dropped, and responses still in flight for it are ignored when they land.
func (l *Loader) SetSelection(chatID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if chatID == l.state.ChatID {
		return
	}
	l.resetLocked(chatID)
}

func (l *Loader) resetLocked(chatID string) {
	l.generation++
	l.state = State{ChatID: chatID, Phase: PhaseIdle, Items: []client.Document{}}
	l.seen = make(map[string]struct{})
}

func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Loader) snapshotLocked() State {
	out := l.state
	out.Items = make([]client.Document, len(l.state.Items))
	copy(out.Items, l.state.Items)
	return out
}

// LoadInitial replaces the loaded documents with page one.
func (l *Loader) LoadInitial(ctx context.Context) State {
	l.mu.Lock()
	if l.state.IsLoading {
		defer l.mu.Unlock()
		return l.snapshotLocked()
	}
	chatID := l.state.ChatID
	if chatID == "" {
		l.state.Phase = PhaseReady
		l.state.HasMore = false
		l.state.Err = nil
		defer l.mu.Unlock()
		return l.snapshotLocked()
	}
	generation := l.generation
	l.state.IsLoading = true
	l.state.Err = nil
	l.state.Phase = PhaseLoadingInitial
	l.mu.Unlock()

	page, err := l.fetcher.FetchDocumentsE(ctx, chatID, 1, l.initialSize)

	l.mu.Lock()
	defer l.mu.Unlock()
	if generation != l.generation {
		l.logger.Debug("discarding stale initial page", zap.String("chat_id", chatID))
		return l.snapshotLocked()
	}
	l.state.IsLoading = false
	if err != nil && !errors.Is(err, client.ErrMissingSelection) {
		l.logger.Warn("initial documents load failed", zap.String("chat_id", chatID), zap.Error(err))
		l.state.Phase = PhaseErrored
		l.state.Err = err
		return l.snapshotLocked()
	}

	l.seen = make(map[string]struct{}, len(page.Documents))
	l.state.Items = l.appendUnseenLocked(make([]client.Document, 0, len(page.Documents)), page.Documents)
	l.state.Page = 1
	l.state.HasMore = page.Pagination.HasMore()
	l.state.Phase = PhaseReady
	return l.snapshotLocked()
}

// LoadMore appends the next page. It does nothing while another LoadMore is
// in flight or once the last page has been reached. An empty page ends
// pagination regardless of what its descriptor claims.
func (l *Loader) LoadMore(ctx context.Context) State {
	l.mu.Lock()
	if l.state.IsLoadingMore || !l.state.HasMore || l.state.ChatID == "" {
		defer l.mu.Unlock()
		return l.snapshotLocked()
	}
	chatID := l.state.ChatID
	generation := l.generation
	next := l.state.Page + 1
	l.state.IsLoadingMore = true
	l.state.Phase = PhaseLoadingMore
	l.mu.Unlock()

	page, err := l.fetcher.FetchDocumentsE(ctx, chatID, next, l.moreSize)

	l.mu.Lock()
	defer l.mu.Unlock()
	if generation != l.generation {
		l.logger.Debug("discarding stale page", zap.String("chat_id", chatID), zap.Int("page", next))
		return l.snapshotLocked()
	}
	l.state.IsLoadingMore = false
	l.state.Phase = PhaseReady
	if err != nil {
		l.logger.Warn("load more documents failed",
			zap.String("chat_id", chatID),
			zap.Int("page", next),
			zap.Error(err),
		)
		return l.snapshotLocked()
	}
	if len(page.Documents) == 0 {
		l.state.HasMore = false
		return l.snapshotLocked()
	}

	l.state.Items = l.appendUnseenLocked(l.state.Items, page.Documents)
	l.state.Page = next
	l.state.HasMore = page.Pagination.HasMore()
	return l.snapshotLocked()
}

// LoadAll runs LoadInitial if nothing is loaded yet, then LoadMore until the
// last page, ctx is done, or maxPages pages have added documents (0 means no
// cap). A loaded first page counts as one. Follow-up pages are smaller than the
// first, so their page numbers overlap what is already loaded: such a page
// advances Page without adding anything and does not count.
func (l *Loader) LoadAll(ctx context.Context, maxPages int) State {
	state := l.State()
	if state.Phase == PhaseIdle || state.Phase == PhaseErrored {
		state = l.LoadInitial(ctx)
	}
	added := 0
	if len(state.Items) > 0 {
		added = 1
	}
	for state.HasMore && ctx.Err() == nil {
		if maxPages > 0 && added >= maxPages {
			break
		}
		before := state
		state = l.LoadMore(ctx)
		if state.Page == before.Page && state.HasMore {
			// the page failed; stop rather than spin on it
			break
		}
		if len(state.Items) > len(before.Items) {
			added++
		}
	}
	return state
}

// appendUnseenLocked skips documents already loaded. Pages of different
// sizes overlap, so the same document can arrive twice.
func (l *Loader) appendUnseenLocked(dst, docs []client.Document) []client.Document {
	for _, doc := range docs {
		if doc.ID != "" {
			if _, ok := l.seen[doc.ID]; ok {
				continue
			}
			l.seen[doc.ID] = struct{}{}
		}
		dst = append(dst, doc)
	}
	return dst
}
