package store

import (
	"context"
	"testing"

	"github.com/dukerupert/chorepoints/internal/database"
	"github.com/dukerupert/chorepoints/internal/model"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func createUser(t *testing.T, s *Store, email, name string) *model.User {
	t.Helper()
	u, err := s.Users.Create(context.Background(), email, name, "hash", model.GlobalRoleStandard)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func TestUserCreateAndGet(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	u, err := s.Users.Create(ctx, "alice@example.com", "Alice", "secret-hash", model.GlobalRoleAdmin)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if !u.IsAdmin() {
		t.Errorf("global_role = %q, want admin", u.GlobalRole)
	}

	got, err := s.Users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", got.Email, "alice@example.com")
	}
}

func TestUserGetByIDNotFound(t *testing.T) {
	s := setupTestDB(t)

	u, err := s.Users.GetByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil, got %+v", u)
	}
}

func TestUserDuplicateEmail(t *testing.T) {
	s := setupTestDB(t)
	createUser(t, s, "alice@example.com", "Alice")

	_, err := s.Users.Create(context.Background(), "alice@example.com", "Other", "hash", model.GlobalRoleStandard)
	if err == nil {
		t.Error("expected error for duplicate email")
	}
}

func TestUserCredentialsAndSoftDelete(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	u := createUser(t, s, "alice@example.com", "Alice")

	got, hash, err := s.Users.GetCredentials(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("get credentials: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("credentials user = %+v, want id %d", got, u.ID)
	}
	if hash != "hash" {
		t.Errorf("hash = %q, want %q", hash, "hash")
	}

	if err := s.Users.SoftDelete(ctx, u.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	got, _, err = s.Users.GetCredentials(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("get credentials after delete: %v", err)
	}
	if got != nil {
		t.Error("deleted user should have no credentials")
	}

	// The row itself is kept.
	kept, err := s.Users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("get deleted user: %v", err)
	}
	if kept == nil || kept.DeletedAt == nil {
		t.Errorf("expected soft-deleted user, got %+v", kept)
	}
}

func TestUserUpdateProfile(t *testing.T) {
	s := setupTestDB(t)
	u := createUser(t, s, "alice@example.com", "Alice")

	updated, err := s.Users.UpdateProfile(context.Background(), u.ID, "Alice Smith")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Name != "Alice Smith" {
		t.Errorf("name = %q, want %q", updated.Name, "Alice Smith")
	}
}
