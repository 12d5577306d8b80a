package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultDocument ResultType = "document"
	ResultChat     ResultType = "chat"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type        ResultType `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Snippet     string     `json:"snippet"`
	ChatID      string     `json:"chatId,omitempty"`
	WorkspaceID string     `json:"workspaceId"`
	Visibility  string     `json:"visibility,omitempty"`
}

// Query describes a search request. WorkspaceID is required by every backend.
type Query struct {
	Text        string
	FilterType  ResultType // empty = all types
	WorkspaceID string
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Content     string `json:"content"`
	ChatID      string `json:"chatId"`
	WorkspaceID string `json:"workspaceId"`
}

// ChatRecord is the data we index for a chat.
type ChatRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	WorkspaceID string `json:"workspaceId"`
	Visibility  string `json:"visibility"`
}
