package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestSQLiteRepository(t *testing.T) {
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	created, err := repo.CreateUser(ctx, CreateUserParams{
		Email:        "carol@example.com",
		FullName:     "Carol Oracle",
		PasswordHash: "hash",
		VaultAddress: "0a1b2c",
		Role:         RoleMember,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID == "" {
		t.Fatal("create user: empty id")
	}

	byEmail, err := repo.GetUserByEmail(ctx, "carol@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != created.ID || byEmail.VaultAddress != "0a1b2c" || byEmail.Role != RoleMember {
		t.Fatalf("get by email: got %+v", byEmail)
	}

	byID, err := repo.GetUserByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.Email != "carol@example.com" {
		t.Fatalf("get by id: got %+v", byID)
	}
	if byID.CreatedAt.IsZero() || byID.UpdatedAt.IsZero() {
		t.Fatal("timestamps not persisted")
	}

	if _, err := repo.CreateUser(ctx, CreateUserParams{
		Email:        "carol@example.com",
		FullName:     "Carol Duplicate",
		PasswordHash: "hash",
		VaultAddress: "ffff",
		Role:         RoleMember,
	}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("duplicate email: err = %v, want ErrDuplicateEmail", err)
	}

	if _, err := repo.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("missing user: err = %v, want ErrUserNotFound", err)
	}
	if _, err := repo.GetUserByID(ctx, "missing-id"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("missing id: err = %v, want ErrUserNotFound", err)
	}
}

// The service wired to the real SQLite repository covers the full register,
// login, verify path.
func TestServiceWithSQLiteRepository(t *testing.T) {
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := NewService(repo, "test-secret")
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{
		Email:    "dave@example.com",
		Password: "strongpassword",
		FullName: "Dave Beneficiary",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: "dave@example.com", Password: "strongpassword"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	identity, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if identity.Address != user.VaultAddress {
		t.Fatalf("identity addr = %q, want %q", identity.Address, user.VaultAddress)
	}
}
