package app

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"memchat/api/internal/auth"
	"memchat/api/internal/authpw"
	"memchat/api/internal/config"
	"memchat/api/internal/logging"
	"memchat/api/internal/rbac"
	"memchat/api/internal/search"
	"memchat/api/internal/store"
	"memchat/api/internal/util"
)

const (
	defaultChatLimit    = 100
	maxChatLimit        = 500
	defaultDocumentPage = 50
	maxDocumentLimit    = 1000
)

var documentSortFields = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

// DocumentsInput is the raw query of GET /api/documents.
type DocumentsInput struct {
	WorkspaceID string
	ChatID      string
	Sort        string
	Order       string
	Page        int
	Limit       int
}

type CreateDocumentInput struct {
	WorkspaceID string         `json:"workspaceId"`
	ChatID      string         `json:"chatId"`
	Title       string         `json:"title"`
	Summary     string         `json:"summary"`
	Content     string         `json:"content"`
	Type        string         `json:"type"`
	Metadata    map[string]any `json:"metadata"`
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	CreateWorkspace(context.Context, store.Workspace, string) error
	GetMembershipRole(context.Context, string, string) (string, error)
	ListMemberships(context.Context, string) ([]store.Membership, error)
	ListWorkspaceMembers(context.Context, string) ([]store.Member, error)
	InsertChat(context.Context, store.Chat) error
	GetChat(context.Context, string) (store.Chat, error)
	ListChats(context.Context, string, int) ([]store.Chat, error)
	UpdateChatVisibility(context.Context, string, string) (bool, error)
	InsertDocument(context.Context, store.Document) error
	ListDocuments(context.Context, store.DocumentQuery) ([]store.Document, error)
	CountDocuments(context.Context, store.DocumentQuery) (int, error)
	Ping(ctx context.Context) error
}

// sessionStore keeps refresh sessions and revoked access tokens. Postgres
// and Redis both implement it.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexDocument(search.DocumentRecord)
	IndexChat(search.ChatRecord)
	Healthy() bool
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	passwd   *authpw.Service
	search   searchService
	logger   *zap.Logger
}

type Option func(*Service)

// WithSessionStore moves refresh sessions off Postgres.
func WithSessionStore(sessions sessionStore) Option {
	return func(s *Service) { s.sessions = sessions }
}

func WithSearch(svc *search.Service) Option {
	return func(s *Service) {
		if svc != nil {
			s.search = svc
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(logger) }
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		passwd:   authpw.NewService(dataStore),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sessions

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*authpw.SignUpResponse, error) {
	resp, err := s.passwd.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, DisplayName: displayName})
	switch {
	case err == nil:
		s.logger.Info("account created", zap.String("user_id", resp.UserID))
		return resp, nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return nil, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrInvalidEmail), errors.Is(err, authpw.ErrWeakPassword):
		return nil, validationError(err.Error(), nil)
	default:
		return nil, err
	}
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwd.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		}
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

// Logout is best-effort; failures to revoke are logged, never returned.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token failed", zap.String("user_id", session.UserID), zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh session failed", zap.Error(err))
		}
	}
}

// Workspaces

// requireRole returns the caller's role in workspaceID when it allows action.
// Non-members get 403 rather than 404 so workspace ids are not probeable.
func (s *Service) requireRole(ctx context.Context, session Session, workspaceID string, action rbac.Action) (rbac.Role, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return "", validationError("workspaceId is required", nil)
	}
	raw, err := s.store.GetMembershipRole(ctx, workspaceID, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", forbidden("Not a member of this workspace", nil)
		}
		return "", err
	}
	role := rbac.Normalize(raw)
	if !rbac.Can(role, action) {
		return "", forbidden("Forbidden", map[string]any{"role": role, "action": action})
	}
	return role, nil
}

func (s *Service) ListWorkspaces(ctx context.Context, session Session) ([]map[string]any, error) {
	memberships, err := s.store.ListMemberships(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(memberships))
	for _, m := range memberships {
		items = append(items, map[string]any{
			"id":       m.Workspace.ID,
			"name":     m.Workspace.Name,
			"slug":     m.Workspace.Slug,
			"role":     rbac.Normalize(m.Role),
			"joinedAt": m.JoinedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return items, nil
}

func (s *Service) ListMembers(ctx context.Context, session Session, workspaceID string) ([]map[string]any, error) {
	if _, err := s.requireRole(ctx, session, workspaceID, rbac.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.store.ListWorkspaceMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, m := range members {
		items = append(items, map[string]any{
			"userId":      m.UserID,
			"displayName": m.DisplayName,
			"email":       m.Email,
			"role":        rbac.Normalize(m.Role),
			"joinedAt":    m.JoinedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return items, nil
}

// Chats

func (s *Service) ListChats(ctx context.Context, session Session, workspaceID string, limit int) ([]map[string]any, error) {
	if _, err := s.requireRole(ctx, session, workspaceID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultChatLimit
	}
	limit = min(limit, maxChatLimit)

	chats, err := s.store.ListChats(ctx, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(chats))
	for _, chat := range chats {
		items = append(items, chatPayload(chat))
	}
	return items, nil
}

func (s *Service) CreateChat(ctx context.Context, session Session, workspaceID, title string) (map[string]any, error) {
	if _, err := s.requireRole(ctx, session, workspaceID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationError("title is required", nil)
	}

	chat := store.Chat{
		ID:          util.NewID("chat"),
		WorkspaceID: workspaceID,
		Title:       title,
		Visibility:  "private",
		CreatedBy:   session.UserID,
	}
	if err := s.store.InsertChat(ctx, chat); err != nil {
		return nil, err
	}
	created, err := s.store.GetChat(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	s.indexChat(created)
	return chatPayload(created), nil
}

// SetChatVisibility requires the share action in the chat's workspace.
func (s *Service) SetChatVisibility(ctx context.Context, session Session, chatID, visibility string) (map[string]any, error) {
	visibility = strings.ToLower(strings.TrimSpace(visibility))
	if visibility != "private" && visibility != "public" {
		return nil, validationError("visibility must be private or public", map[string]any{
			"allowed": []string{"private", "public"},
		})
	}

	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireRole(ctx, session, chat.WorkspaceID, rbac.ActionShare); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateChatVisibility(ctx, chatID, visibility)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, sql.ErrNoRows
	}
	chat.Visibility = visibility
	s.indexChat(chat)
	s.logger.Info("chat visibility changed",
		zap.String("chat_id", chatID),
		zap.String("visibility", visibility),
		zap.String("user_id", session.UserID),
	)
	return chatPayload(chat), nil
}

// Documents

// documentQuery validates in and scopes it to one workspace. A chat id
// implies its workspace; an explicit workspace must match it.
func (s *Service) documentQuery(ctx context.Context, session Session, in DocumentsInput) (store.DocumentQuery, error) {
	workspaceID := strings.TrimSpace(in.WorkspaceID)
	chatID := strings.TrimSpace(in.ChatID)
	if chatID != "" {
		chat, err := s.store.GetChat(ctx, chatID)
		if err != nil {
			return store.DocumentQuery{}, err
		}
		if workspaceID != "" && workspaceID != chat.WorkspaceID {
			return store.DocumentQuery{}, validationError("chat does not belong to workspace", nil)
		}
		workspaceID = chat.WorkspaceID
	}
	if _, err := s.requireRole(ctx, session, workspaceID, rbac.ActionRead); err != nil {
		return store.DocumentQuery{}, err
	}

	sort := in.Sort
	if sort == "" {
		sort = "createdAt"
	}
	column, ok := documentSortFields[sort]
	if !ok {
		return store.DocumentQuery{}, validationError("sort must be createdAt or updatedAt", nil)
	}
	order := strings.ToLower(in.Order)
	if order != "" && order != "asc" && order != "desc" {
		return store.DocumentQuery{}, validationError("order must be asc or desc", nil)
	}

	limit := in.Limit
	if limit == 0 {
		limit = defaultDocumentPage
	}
	return store.DocumentQuery{
		WorkspaceID: workspaceID,
		ChatID:      chatID,
		SortColumn:  column,
		Descending:  order != "asc",
		Page:        max(in.Page, 1),
		Limit:       min(max(limit, 1), maxDocumentLimit),
	}, nil
}

// ListDocuments returns one page plus the pagination descriptor. The page
// and the total are read concurrently.
func (s *Service) ListDocuments(ctx context.Context, session Session, in DocumentsInput) (map[string]any, error) {
	q, err := s.documentQuery(ctx, session, in)
	if err != nil {
		return nil, err
	}

	var (
		documents []store.Document
		total     int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		documents, err = s.store.ListDocuments(groupCtx, q)
		return err
	})
	group.Go(func() error {
		var err error
		total, err = s.store.CountDocuments(groupCtx, q)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		items = append(items, documentPayload(doc))
	}
	return map[string]any{
		"documents":  items,
		"pagination": paginationPayload(q.Page, q.Limit, total),
	}, nil
}

func (s *Service) CreateDocument(ctx context.Context, session Session, in CreateDocumentInput) (map[string]any, error) {
	workspaceID := strings.TrimSpace(in.WorkspaceID)
	chatID := strings.TrimSpace(in.ChatID)
	if chatID != "" {
		chat, err := s.store.GetChat(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if workspaceID == "" {
			workspaceID = chat.WorkspaceID
		}
		if workspaceID != chat.WorkspaceID {
			return nil, validationError("chat does not belong to workspace", nil)
		}
	}
	if _, err := s.requireRole(ctx, session, workspaceID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationError("title is required", nil)
	}
	docType := strings.TrimSpace(in.Type)
	if docType == "" {
		docType = "text"
	}

	now := time.Now().UTC()
	doc := store.Document{
		ID:          util.NewID("doc"),
		WorkspaceID: workspaceID,
		ChatID:      chatID,
		Title:       title,
		Summary:     strings.TrimSpace(in.Summary),
		Content:     in.Content,
		Type:        docType,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexDocument(search.DocumentRecord{
			ID:          doc.ID,
			Title:       doc.Title,
			Summary:     doc.Summary,
			Content:     doc.Content,
			ChatID:      doc.ChatID,
			WorkspaceID: doc.WorkspaceID,
		})
	}
	return documentPayload(doc), nil
}

// Search

func (s *Service) Search(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	if _, err := s.requireRole(ctx, session, q.WorkspaceID, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	q.Offset = max(q.Offset, 0)
	return s.search.Search(ctx, q), nil
}

func (s *Service) indexChat(chat store.Chat) {
	if s.search == nil {
		return
	}
	s.search.IndexChat(search.ChatRecord{
		ID:          chat.ID,
		Title:       chat.Title,
		WorkspaceID: chat.WorkspaceID,
		Visibility:  chat.Visibility,
	})
}

// Readiness

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks the session store when it is separate from Postgres.
func (s *Service) PingSessions(ctx context.Context) (bool, error) {
	if s.sessions == nil {
		return false, nil
	}
	if _, same := s.sessions.(dataStore); same {
		return false, nil
	}
	pinger, ok := s.sessions.(interface{ Ping(context.Context) error })
	if !ok {
		return false, nil
	}
	return true, pinger.Ping(ctx)
}

// SearchHealthy reports search readiness; ok is false when search is unset.
func (s *Service) SearchHealthy() (configured, healthy bool) {
	if s.search == nil {
		return false, false
	}
	return true, s.search.Healthy()
}

// Payloads

func chatPayload(chat store.Chat) map[string]any {
	return map[string]any{
		"id":          chat.ID,
		"workspaceId": chat.WorkspaceID,
		"title":       chat.Title,
		"visibility":  chat.Visibility,
		"createdBy":   chat.CreatedBy,
		"createdAt":   chat.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func documentPayload(doc store.Document) map[string]any {
	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return map[string]any{
		"id":          doc.ID,
		"workspaceId": doc.WorkspaceID,
		"chatId":      doc.ChatID,
		"title":       doc.Title,
		"summary":     doc.Summary,
		"content":     doc.Content,
		"type":        doc.Type,
		"metadata":    metadata,
		"createdAt":   doc.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":   doc.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// paginationPayload keeps currentPage within totalPages; a page requested
// past the end reports the last page with no documents.
func paginationPayload(page, limit, total int) map[string]any {
	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	return map[string]any{
		"currentPage": page,
		"totalPages":  totalPages,
		"totalItems":  total,
		"limit":       limit,
	}
}
