package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchDocumentsWithoutSelectionMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	page := New(srv.URL).FetchDocuments(context.Background(), "", 1, 500)

	assert.Empty(t, page.Documents)
	assert.NotNil(t, page.Documents)
	assert.Equal(t, Pagination{CurrentPage: 1, TotalPages: 0, TotalItems: 0, Limit: 500}, page.Pagination)
	assert.EqualValues(t, 0, calls.Load())
}

func TestFetchDocumentsSendsPagingQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "100", q.Get("limit"))
		assert.Equal(t, "createdAt", q.Get("sort"))
		assert.Equal(t, "desc", q.Get("order"))
		assert.Equal(t, "chat-1", q.Get("chatId"))
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"documents":  []map[string]any{{"id": "d1", "title": "One"}},
			"pagination": map[string]any{"currentPage": 2, "totalPages": 3, "totalItems": 250, "limit": 100},
		})
	}))
	defer srv.Close()

	tokens := &MemoryTokens{}
	require.NoError(t, tokens.SetTokens(Tokens{Access: "access-1"}))
	page := New(srv.URL, WithTokenStore(tokens)).FetchDocuments(context.Background(), "chat-1", 2, 100)

	require.Len(t, page.Documents, 1)
	assert.Equal(t, "d1", page.Documents[0].ID)
	assert.True(t, page.Pagination.HasMore())
	assert.Equal(t, 250, page.Pagination.TotalItems)
}

func TestFetchDocumentsNormalizesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"SERVER_ERROR","error":"boom"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	page := c.FetchDocuments(context.Background(), "chat-1", 1, 500)
	assert.Empty(t, page.Documents)
	assert.Equal(t, 0, page.Pagination.TotalPages)

	_, err := c.FetchDocumentsE(context.Background(), "chat-1", 1, 500)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, "SERVER_ERROR", statusErr.Code)
}

func TestFetchDocumentsNormalizesTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url)
	page := c.FetchDocuments(context.Background(), "chat-1", 1, 500)
	assert.Empty(t, page.Documents)

	_, err := c.FetchDocumentsE(context.Background(), "chat-1", 1, 500)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestDoRefreshesOnceOnUnauthorized(t *testing.T) {
	var chatCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/session/refresh":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "refresh-1", body["refreshToken"])
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "access-2", "refreshToken": "refresh-2"})
		case "/api/chats":
			chatCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer access-2" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","error":"Unauthorized"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"chats": []map[string]any{{"id": "c1", "title": "General"}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tokens := &MemoryTokens{}
	require.NoError(t, tokens.SetTokens(Tokens{Access: "access-1", Refresh: "refresh-1"}))
	chats, err := New(srv.URL, WithTokenStore(tokens)).ListChats(context.Background(), "ws-1", 50)

	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.EqualValues(t, 2, chatCalls.Load())
	assert.Equal(t, Tokens{Access: "access-2", Refresh: "refresh-2"}, tokens.Tokens())
}

func TestListChatsRequiresWorkspace(t *testing.T) {
	_, err := New("http://127.0.0.1:1").ListChats(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrMissingSelection)
}

func TestSignInStoresTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/signin", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken": "a", "refreshToken": "r", "userId": "usr-1", "userName": "Avery",
		})
	}))
	defer srv.Close()

	tokens := &MemoryTokens{}
	session, err := New(srv.URL, WithTokenStore(tokens)).SignIn(context.Background(), "avery@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Avery", session.UserName)
	assert.Equal(t, Tokens{Access: "a", Refresh: "r"}, tokens.Tokens())
}

func TestVisibilityValid(t *testing.T) {
	assert.True(t, VisibilityPrivate.Valid())
	assert.True(t, VisibilityPublic.Valid())
	assert.False(t, Visibility("secret").Valid())
}
