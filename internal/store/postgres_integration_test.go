package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"memchat/api/internal/util"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("MEMCHAT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MEMCHAT_TEST_DATABASE_URL not set")
	}
	return url
}

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := ApplyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func seedWorkspace(t *testing.T, s *PostgresStore) (User, Workspace) {
	t.Helper()
	ctx := context.Background()
	user := User{ID: util.NewID("usr"), DisplayName: "Avery", Email: util.NewID("avery") + "@example.com"}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	workspace := Workspace{ID: util.NewID("ws"), Name: "Research", Slug: util.NewID("research")}
	if err := s.CreateWorkspace(ctx, workspace, user.ID); err != nil {
		t.Fatalf("CreateWorkspace() error = %v", err)
	}
	return user, workspace
}

func TestChatsAndMembershipsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, workspace := seedWorkspace(t, s)

	role, err := s.GetMembershipRole(ctx, workspace.ID, user.ID)
	if err != nil || role != "owner" {
		t.Fatalf("GetMembershipRole() = %q, %v; want owner", role, err)
	}
	if _, err := s.GetMembershipRole(ctx, workspace.ID, "usr_missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for non-member, got %v", err)
	}

	chat := Chat{ID: util.NewID("chat"), WorkspaceID: workspace.ID, Title: "General", Visibility: "private", CreatedBy: user.ID}
	if err := s.InsertChat(ctx, chat); err != nil {
		t.Fatalf("InsertChat() error = %v", err)
	}
	updated, err := s.UpdateChatVisibility(ctx, chat.ID, "public")
	if err != nil || !updated {
		t.Fatalf("UpdateChatVisibility() = %v, %v", updated, err)
	}
	got, err := s.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if got.Visibility != "public" {
		t.Fatalf("expected public visibility, got %q", got.Visibility)
	}

	members, err := s.ListWorkspaceMembers(ctx, workspace.ID)
	if err != nil {
		t.Fatalf("ListWorkspaceMembers() error = %v", err)
	}
	if len(members) != 1 || members[0].UserID != user.ID {
		t.Fatalf("unexpected members: %+v", members)
	}
}

func TestListDocumentsPaginates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, workspace := seedWorkspace(t, s)
	chat := Chat{ID: util.NewID("chat"), WorkspaceID: workspace.ID, Title: "Notes", Visibility: "private", CreatedBy: user.ID}
	if err := s.InsertChat(ctx, chat); err != nil {
		t.Fatalf("InsertChat() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		doc := Document{ID: util.NewID("doc"), WorkspaceID: workspace.ID, ChatID: chat.ID, Title: fmt.Sprintf("Doc %d", i), Type: "text"}
		if err := s.InsertDocument(ctx, doc); err != nil {
			t.Fatalf("InsertDocument() error = %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	q := DocumentQuery{ChatID: chat.ID, SortColumn: "created_at", Descending: true, Page: 2, Limit: 2}
	docs, err := s.ListDocuments(ctx, q)
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if len(docs) != 2 || docs[0].Title != "Doc 2" {
		t.Fatalf("unexpected page 2: %+v", docs)
	}
	total, err := s.CountDocuments(ctx, q)
	if err != nil || total != 5 {
		t.Fatalf("CountDocuments() = %d, %v; want 5", total, err)
	}
}
