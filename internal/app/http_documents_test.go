package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"memchat/api/internal/search"
	"memchat/api/internal/store"
)

type documentsPayload struct {
	Documents  []map[string]any `json:"documents"`
	Pagination struct {
		CurrentPage int `json:"currentPage"`
		TotalPages  int `json:"totalPages"`
		TotalItems  int `json:"totalItems"`
		Limit       int `json:"limit"`
	} `json:"pagination"`
}

func documentStore(total int, seen *store.DocumentQuery) *fakeStore {
	var mu sync.Mutex
	return &fakeStore{
		getMembershipRoleFn: memberOf(map[string]string{"ws-1": "viewer"}),
		getChatFn: func(_ context.Context, chatID string) (store.Chat, error) {
			if chatID == "c1" {
				return store.Chat{ID: "c1", WorkspaceID: "ws-1"}, nil
			}
			return store.Chat{}, sql.ErrNoRows
		},
		listDocumentsFn: func(_ context.Context, q store.DocumentQuery) ([]store.Document, error) {
			mu.Lock()
			*seen = q
			mu.Unlock()
			n := min(q.Limit, max(total-q.Offset(), 0))
			docs := make([]store.Document, 0, n)
			for i := 0; i < n; i++ {
				docs = append(docs, store.Document{ID: fmt.Sprintf("d%d", q.Offset()+i+1), ChatID: q.ChatID, WorkspaceID: q.WorkspaceID})
			}
			return docs, nil
		},
		countDocumentsFn: func(context.Context, store.DocumentQuery) (int, error) {
			return total, nil
		},
	}
}

func TestListDocumentsPagination(t *testing.T) {
	var seen store.DocumentQuery
	server := NewHTTPServer(newTestService(documentStore(250, &seen)), "*")

	rr := serve(t, server, http.MethodGet, "/api/documents?chatId=c1&page=2&limit=100&sort=createdAt&order=desc", "", testToken(t, "usr-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload documentsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(payload.Documents) != 100 || payload.Documents[0]["id"] != "d101" {
		t.Fatalf("unexpected documents page: %d items", len(payload.Documents))
	}
	p := payload.Pagination
	if p.CurrentPage != 2 || p.TotalPages != 3 || p.TotalItems != 250 || p.Limit != 100 {
		t.Fatalf("unexpected pagination %+v", p)
	}
	if seen.WorkspaceID != "ws-1" || seen.ChatID != "c1" || seen.SortColumn != "created_at" || !seen.Descending {
		t.Fatalf("unexpected query %+v", seen)
	}
}

func TestListDocumentsPastTheEndIsEmpty(t *testing.T) {
	var seen store.DocumentQuery
	server := NewHTTPServer(newTestService(documentStore(250, &seen)), "*")

	rr := serve(t, server, http.MethodGet, "/api/documents?chatId=c1&page=9&limit=100", "", testToken(t, "usr-1"))

	var payload documentsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.Documents == nil || len(payload.Documents) != 0 {
		t.Fatalf("expected an empty documents array, got %s", rr.Body.String())
	}
	p := payload.Pagination
	if p.TotalPages != 3 || p.CurrentPage > p.TotalPages {
		t.Fatalf("currentPage must not pass totalPages, got %+v", p)
	}
	if p.CurrentPage != 3 || p.TotalItems != 250 {
		t.Fatalf("unexpected pagination %+v", p)
	}
}

func TestListDocumentsQueryNormalization(t *testing.T) {
	token := testToken(t, "usr-1")
	cases := []struct {
		name       string
		query      string
		wantLimit  int
		wantPage   int
		wantColumn string
		wantDesc   bool
	}{
		{"defaults", "chatId=c1", defaultDocumentPage, 1, "created_at", true},
		{"clamped high", "chatId=c1&limit=5000", maxDocumentLimit, 1, "created_at", true},
		{"clamped low", "chatId=c1&limit=-3&page=-1", 1, 1, "created_at", true},
		{"updated asc", "workspaceId=ws-1&sort=updatedAt&order=asc", defaultDocumentPage, 1, "updated_at", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen store.DocumentQuery
			server := NewHTTPServer(newTestService(documentStore(0, &seen)), "*")
			rr := serve(t, server, http.MethodGet, "/api/documents?"+tc.query, "", token)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
			}
			if seen.Limit != tc.wantLimit || seen.Page != tc.wantPage || seen.SortColumn != tc.wantColumn || seen.Descending != tc.wantDesc {
				t.Fatalf("unexpected query %+v", seen)
			}
			if !strings.Contains(rr.Body.String(), `"totalPages":0`) {
				t.Fatalf("empty result should have zero pages: %s", rr.Body.String())
			}
		})
	}
}

func TestListDocumentsRejections(t *testing.T) {
	token := testToken(t, "usr-1")
	cases := []struct {
		name   string
		query  string
		status int
	}{
		{"bad sort", "chatId=c1&sort=title", http.StatusUnprocessableEntity},
		{"bad order", "chatId=c1&order=sideways", http.StatusUnprocessableEntity},
		{"no scope", "", http.StatusUnprocessableEntity},
		{"unknown chat", "chatId=zzz", http.StatusNotFound},
		{"foreign workspace", "workspaceId=ws-9", http.StatusForbidden},
		{"chat outside workspace", "chatId=c1&workspaceId=ws-2", http.StatusUnprocessableEntity},
		{"bad page", "chatId=c1&page=two", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen store.DocumentQuery
			server := NewHTTPServer(newTestService(documentStore(10, &seen)), "*")
			rr := serve(t, server, http.MethodGet, "/api/documents?"+tc.query, "", token)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d body=%s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestListDocumentsCountFailure(t *testing.T) {
	var seen store.DocumentQuery
	fs := documentStore(10, &seen)
	fs.countDocumentsFn = func(context.Context, store.DocumentQuery) (int, error) {
		return 0, errors.New("timeout")
	}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := serve(t, server, http.MethodGet, "/api/documents?chatId=c1", "", testToken(t, "usr-1"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

type recordingSearch struct {
	mu      sync.Mutex
	indexed []search.DocumentRecord
	queries []search.Query
}

func (r *recordingSearch) Search(_ context.Context, q search.Query) search.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	return search.Response{Results: []search.Result{{Type: search.ResultDocument, ID: "d1"}}, Total: 1, Query: q.Text}
}

func (r *recordingSearch) IndexDocument(doc search.DocumentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, doc)
}

func (r *recordingSearch) IndexChat(search.ChatRecord) {}

func (r *recordingSearch) Healthy() bool { return true }

func TestCreateDocumentIndexesIt(t *testing.T) {
	var inserted store.Document
	var seen store.DocumentQuery
	fs := documentStore(0, &seen)
	fs.getMembershipRoleFn = memberOf(map[string]string{"ws-1": "member"})
	fs.insertDocumentFn = func(_ context.Context, doc store.Document) error {
		inserted = doc
		return nil
	}
	svc := newTestService(fs)
	recorder := &recordingSearch{}
	svc.search = recorder
	server := NewHTTPServer(svc, "*")

	rr := serve(t, server, http.MethodPost, "/api/documents",
		`{"chatId":"c1","title":"Notes","summary":"week 1","content":"hello","metadata":{"source":"upload"}}`, testToken(t, "usr-1"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if inserted.WorkspaceID != "ws-1" || inserted.Type != "text" || inserted.Metadata["source"] != "upload" {
		t.Fatalf("unexpected inserted document %+v", inserted)
	}
	if len(recorder.indexed) != 1 || recorder.indexed[0].ID != inserted.ID {
		t.Fatalf("document was not indexed: %+v", recorder.indexed)
	}
}

func TestSearchScopesToWorkspace(t *testing.T) {
	fs := &fakeStore{getMembershipRoleFn: memberOf(map[string]string{"ws-1": "viewer"})}
	svc := newTestService(fs)
	recorder := &recordingSearch{}
	svc.search = recorder
	server := NewHTTPServer(svc, "*")
	token := testToken(t, "usr-1")

	rr := serve(t, server, http.MethodGet, "/api/search?q=roadmap&workspaceId=ws-1&limit=500", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(recorder.queries) != 1 || recorder.queries[0].WorkspaceID != "ws-1" || recorder.queries[0].Limit != 20 {
		t.Fatalf("unexpected queries %+v", recorder.queries)
	}

	rr = serve(t, server, http.MethodGet, "/api/search?q=roadmap&workspaceId=ws-2", "", token)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestSearchUnconfigured(t *testing.T) {
	fs := &fakeStore{getMembershipRoleFn: memberOf(map[string]string{"ws-1": "viewer"})}
	server := NewHTTPServer(newTestService(fs), "*")

	rr := serve(t, server, http.MethodGet, "/api/search?q=x&workspaceId=ws-1", "", testToken(t, "usr-1"))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
