package app

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"memchat/api/internal/auth"
	"memchat/api/internal/authpw"
	"memchat/api/internal/config"
	"memchat/api/internal/store"
)

const testSecret = "test-secret"

type fakeStore struct {
	getUserByIDFn          func(context.Context, string) (store.User, error)
	getUserByEmailFn       func(context.Context, string) (store.User, error)
	createUserFn           func(context.Context, store.User) error
	createWorkspaceFn      func(context.Context, store.Workspace, string) error
	getMembershipRoleFn    func(context.Context, string, string) (string, error)
	listMembershipsFn      func(context.Context, string) ([]store.Membership, error)
	listWorkspaceMembersFn func(context.Context, string) ([]store.Member, error)
	insertChatFn           func(context.Context, store.Chat) error
	getChatFn              func(context.Context, string) (store.Chat, error)
	listChatsFn            func(context.Context, string, int) ([]store.Chat, error)
	updateChatVisibilityFn func(context.Context, string, string) (bool, error)
	insertDocumentFn       func(context.Context, store.Document) error
	listDocumentsFn        func(context.Context, store.DocumentQuery) ([]store.Document, error)
	countDocumentsFn       func(context.Context, store.DocumentQuery) (int, error)
	pingFn                 func(context.Context) error

	saveRefreshSessionFn   func(context.Context, string, string, time.Time) error
	lookupRefreshSessionFn func(context.Context, string) (store.User, error)
	revokeRefreshSessionFn func(context.Context, string) error
	revokeAccessTokenFn    func(context.Context, string, time.Time) error
	isAccessTokenRevokedFn func(context.Context, string) (bool, error)
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{ID: id, DisplayName: "Avery", Email: "avery@example.com"}, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}

func (f *fakeStore) CreateWorkspace(ctx context.Context, workspace store.Workspace, ownerID string) error {
	if f.createWorkspaceFn != nil {
		return f.createWorkspaceFn(ctx, workspace, ownerID)
	}
	return nil
}

func (f *fakeStore) GetMembershipRole(ctx context.Context, workspaceID, userID string) (string, error) {
	if f.getMembershipRoleFn != nil {
		return f.getMembershipRoleFn(ctx, workspaceID, userID)
	}
	return "", sql.ErrNoRows
}

func (f *fakeStore) ListMemberships(ctx context.Context, userID string) ([]store.Membership, error) {
	if f.listMembershipsFn != nil {
		return f.listMembershipsFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakeStore) ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]store.Member, error) {
	if f.listWorkspaceMembersFn != nil {
		return f.listWorkspaceMembersFn(ctx, workspaceID)
	}
	return nil, nil
}

func (f *fakeStore) InsertChat(ctx context.Context, chat store.Chat) error {
	if f.insertChatFn != nil {
		return f.insertChatFn(ctx, chat)
	}
	return nil
}

func (f *fakeStore) GetChat(ctx context.Context, chatID string) (store.Chat, error) {
	if f.getChatFn != nil {
		return f.getChatFn(ctx, chatID)
	}
	return store.Chat{}, sql.ErrNoRows
}

func (f *fakeStore) ListChats(ctx context.Context, workspaceID string, limit int) ([]store.Chat, error) {
	if f.listChatsFn != nil {
		return f.listChatsFn(ctx, workspaceID, limit)
	}
	return nil, nil
}

func (f *fakeStore) UpdateChatVisibility(ctx context.Context, chatID, visibility string) (bool, error) {
	if f.updateChatVisibilityFn != nil {
		return f.updateChatVisibilityFn(ctx, chatID, visibility)
	}
	return true, nil
}

func (f *fakeStore) InsertDocument(ctx context.Context, doc store.Document) error {
	if f.insertDocumentFn != nil {
		return f.insertDocumentFn(ctx, doc)
	}
	return nil
}

func (f *fakeStore) ListDocuments(ctx context.Context, q store.DocumentQuery) ([]store.Document, error) {
	if f.listDocumentsFn != nil {
		return f.listDocumentsFn(ctx, q)
	}
	return nil, nil
}

func (f *fakeStore) CountDocuments(ctx context.Context, q store.DocumentQuery) (int, error) {
	if f.countDocumentsFn != nil {
		return f.countDocumentsFn(ctx, q)
	}
	return 0, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if f.saveRefreshSessionFn != nil {
		return f.saveRefreshSessionFn(ctx, tokenHash, userID, expiresAt)
	}
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if f.lookupRefreshSessionFn != nil {
		return f.lookupRefreshSessionFn(ctx, tokenHash)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeRefreshSessionFn != nil {
		return f.revokeRefreshSessionFn(ctx, tokenHash)
	}
	return nil
}

func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	if f.revokeAccessTokenFn != nil {
		return f.revokeAccessTokenFn(ctx, jti, exp)
	}
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  testSecret,
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:    fs,
		sessions: fs,
		passwd:   authpw.NewServiceWithCost(fs, bcrypt.MinCost),
		logger:   zap.NewNop(),
	}
}

func testToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub: userID,
		JTI: "jti-" + userID,
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func serve(t *testing.T, server *HTTPServer, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}
