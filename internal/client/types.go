package client

import "time"

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a visibility the server accepts.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

type Document struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Summary   string         `json:"summary,omitempty"`
	Content   string         `json:"content,omitempty"`
	ChatID    string         `json:"chatId,omitempty"`
	Type      string         `json:"type,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
	Limit       int `json:"limit"`
}

// HasMore reports whether pages remain after CurrentPage.
func (p Pagination) HasMore() bool {
	return p.CurrentPage < p.TotalPages
}

type DocumentPage struct {
	Documents  []Document `json:"documents"`
	Pagination Pagination `json:"pagination"`
}

// emptyPage is what every "no data" path returns.
func emptyPage(limit int) DocumentPage {
	return DocumentPage{
		Documents:  []Document{},
		Pagination: Pagination{CurrentPage: 1, TotalPages: 0, TotalItems: 0, Limit: limit},
	}
}

// Chat keeps CreatedAt as the wire string; callers decide how to treat
// values that do not parse.
type Chat struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	Title       string     `json:"title"`
	Visibility  Visibility `json:"visibility"`
	CreatedAt   string     `json:"createdAt"`
}

type Member struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type Workspace struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Session is the result of a sign-in.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	ExpiresAt    int64  `json:"expiresAt"`
}
