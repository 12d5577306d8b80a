package authpw

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"memchat/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[string]store.User
	emailIndex map[string]string
	workspaces map[string]string // workspaceID -> ownerID
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]store.User),
		emailIndex: make(map[string]string),
		workspaces: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[strings.ToLower(email)]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(_ context.Context, user store.User) error {
	if _, ok := m.emailIndex[user.Email]; ok {
		return store.ErrDuplicateEmail
	}
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) CreateWorkspace(_ context.Context, workspace store.Workspace, ownerID string) error {
	m.workspaces[workspace.ID] = ownerID
	return nil
}

func newTestAuth() (*Service, *mockUserStore) {
	ms := newMockUserStore()
	return NewServiceWithCost(ms, bcrypt.MinCost), ms
}

func TestSignUpCreatesUserAndWorkspace(t *testing.T) {
	svc, ms := newTestAuth()
	resp, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       " Avery@Example.com ",
		Password:    "correct-horse",
		DisplayName: "Avery",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if resp.UserID == "" || resp.WorkspaceID == "" {
		t.Fatalf("expected ids in response, got %+v", resp)
	}
	if ms.workspaces[resp.WorkspaceID] != resp.UserID {
		t.Fatalf("expected personal workspace owned by %s", resp.UserID)
	}
	user := ms.users[resp.UserID]
	if user.Email != "avery@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "correct-horse" {
		t.Fatal("password stored in plain text")
	}
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestAuth()
	cases := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{name: "missing fields", req: SignUpRequest{Email: "a@example.com"}, want: ErrMissingFields},
		{name: "short password", req: SignUpRequest{Email: "a@example.com", Password: "short", DisplayName: "A"}, want: ErrWeakPassword},
		{name: "bad email", req: SignUpRequest{Email: "not-an-email", Password: "long-enough", DisplayName: "A"}, want: ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SignUp(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("SignUp() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestAuth()
	req := SignUpRequest{Email: "avery@example.com", Password: "correct-horse", DisplayName: "Avery"}
	if _, err := svc.SignUp(context.Background(), req); err != nil {
		t.Fatalf("first SignUp() error = %v", err)
	}
	if _, err := svc.SignUp(context.Background(), req); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignIn(t *testing.T) {
	svc, _ := newTestAuth()
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "avery@example.com", Password: "correct-horse", DisplayName: "Avery"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	user, err := svc.SignIn(ctx, SignInRequest{Email: "avery@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if user.DisplayName != "Avery" || user.PasswordHash != "" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "avery@example.com", Password: "wrong-horse"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "correct-horse"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}
