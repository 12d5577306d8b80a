// Package client talks to the memchat API. Document paging never returns an
// error to its caller: failures are logged and come back as an empty page.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"memchat/api/internal/logging"
)

// Tokens is the pair handed out at sign-in.
type Tokens struct {
	Access  string
	Refresh string
}

// TokenStore persists tokens between runs. Implementations must be safe for concurrent use.
type TokenStore interface {
	Tokens() Tokens
	SetTokens(Tokens) error
}

// MemoryTokens is a TokenStore that lives only as long as the process.
type MemoryTokens struct {
	mu     sync.Mutex
	tokens Tokens
}

func (m *MemoryTokens) Tokens() Tokens {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

func (m *MemoryTokens) SetTokens(t Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = t
	return nil
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithTokenStore(tokens TokenStore) Option {
	return func(c *Client) { c.tokens = tokens }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(logger) }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  &MemoryTokens{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Logger returns the client's logger so collaborators can log under the same sink.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// SignIn exchanges credentials for tokens and stores them.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	var session Session
	body := map[string]string{"email": email, "password": password}
	if err := c.send(ctx, http.MethodPost, "/api/auth/signin", nil, body, &session, false); err != nil {
		return Session{}, err
	}
	if err := c.tokens.SetTokens(Tokens{Access: session.AccessToken, Refresh: session.RefreshToken}); err != nil {
		return Session{}, fmt.Errorf("store tokens: %w", err)
	}
	return session, nil
}

// SignOut revokes the stored session server-side and forgets it locally.
func (c *Client) SignOut(ctx context.Context) error {
	tokens := c.tokens.Tokens()
	body := map[string]string{"refreshToken": tokens.Refresh}
	err := c.send(ctx, http.MethodPost, "/api/session/logout", nil, body, nil, false)
	if clearErr := c.tokens.SetTokens(Tokens{}); clearErr != nil && err == nil {
		err = fmt.Errorf("clear tokens: %w", clearErr)
	}
	return err
}

// refresh trades the stored refresh token for a new pair.
func (c *Client) refresh(ctx context.Context) error {
	current := c.tokens.Tokens()
	if current.Refresh == "" {
		return ErrNotSignedIn
	}
	var out struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	body := map[string]string{"refreshToken": current.Refresh}
	if err := c.send(ctx, http.MethodPost, "/api/session/refresh", nil, body, &out, false); err != nil {
		return err
	}
	return c.tokens.SetTokens(Tokens{Access: out.Token, Refresh: out.RefreshToken})
}

func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	var out struct {
		Workspaces []Workspace `json:"workspaces"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/workspaces", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Workspaces, nil
}

func (c *Client) ListMembers(ctx context.Context, workspaceID string) ([]Member, error) {
	if workspaceID == "" {
		return nil, ErrMissingSelection
	}
	var out struct {
		Members []Member `json:"members"`
	}
	path := "/api/workspaces/" + url.PathEscape(workspaceID) + "/members"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

func (c *Client) ListChats(ctx context.Context, workspaceID string, limit int) ([]Chat, error) {
	if workspaceID == "" {
		return nil, ErrMissingSelection
	}
	query := url.Values{}
	query.Set("workspaceId", workspaceID)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Chats []Chat `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chats", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

func (c *Client) SetChatVisibility(ctx context.Context, chatID string, visibility Visibility) (Chat, error) {
	if chatID == "" {
		return Chat{}, ErrMissingSelection
	}
	var out struct {
		Chat Chat `json:"chat"`
	}
	path := "/api/chats/" + url.PathEscape(chatID) + "/visibility"
	body := map[string]string{"visibility": string(visibility)}
	if err := c.do(ctx, http.MethodPatch, path, nil, body, &out); err != nil {
		return Chat{}, err
	}
	return out.Chat, nil
}

// FetchDocuments returns one page of a chat's documents. A missing chat id,
// a transport failure, or a non-2xx status all yield an empty page.
func (c *Client) FetchDocuments(ctx context.Context, chatID string, page, limit int) DocumentPage {
	result, err := c.FetchDocumentsE(ctx, chatID, page, limit)
	if err != nil {
		if !errors.Is(err, ErrMissingSelection) {
			c.logger.Warn("fetch documents failed",
				zap.String("chat_id", chatID),
				zap.Int("page", page),
				zap.Int("limit", limit),
				zap.Error(err),
			)
		}
		return emptyPage(limit)
	}
	return result
}

// FetchDocumentsE is FetchDocuments with the failure reported. The page is
// still the empty shape when err is non-nil.
func (c *Client) FetchDocumentsE(ctx context.Context, chatID string, page, limit int) (DocumentPage, error) {
	if chatID == "" {
		return emptyPage(limit), ErrMissingSelection
	}
	if page < 1 {
		page = 1
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("sort", "createdAt")
	query.Set("order", "desc")
	query.Set("chatId", chatID)

	var out DocumentPage
	if err := c.do(ctx, http.MethodGet, "/api/documents", query, nil, &out); err != nil {
		return emptyPage(limit), err
	}
	if out.Documents == nil {
		out.Documents = []Document{}
	}
	return out, nil
}

// do sends an authenticated request, refreshing the session once on 401.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	err := c.send(ctx, method, path, query, body, out, true)
	if !IsStatus(err, http.StatusUnauthorized) {
		return err
	}
	if refreshErr := c.refresh(ctx); refreshErr != nil {
		c.logger.Debug("session refresh failed", zap.Error(refreshErr))
		return err
	}
	return c.send(ctx, method, path, query, body, out, true)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out any, authenticated bool) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if access := c.tokens.Tokens().Access; access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrTransport, path, err)
	}
	return nil
}

func decodeStatusError(resp *http.Response) error {
	statusErr := &StatusError{Status: resp.StatusCode}
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
		statusErr.Code = payload.Code
		statusErr.Message = payload.Error
	}
	return statusErr
}
