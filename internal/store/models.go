package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Workspace struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Membership is a workspace as seen by one of its members.
type Membership struct {
	Workspace Workspace
	Role      string
	JoinedAt  time.Time
}

// Member is a user as seen from a workspace's member list.
type Member struct {
	UserID      string
	DisplayName string
	Email       string
	Role        string
	JoinedAt    time.Time
}

type Chat struct {
	ID          string
	WorkspaceID string
	Title       string
	Visibility  string
	CreatedBy   string
	CreatedAt   time.Time
}

type Document struct {
	ID          string
	WorkspaceID string
	ChatID      string
	Title       string
	Summary     string
	Content     string
	Type        string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentQuery selects one page of documents. Page is 1-based.
type DocumentQuery struct {
	WorkspaceID string
	ChatID      string
	SortColumn  string
	Descending  bool
	Page        int
	Limit       int
}

// Offset returns the row offset of the first document on the page.
func (q DocumentQuery) Offset() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}
