package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "alice@example.com",
		Password: "supersafe",
		FullName: "Alice Payer",
	}

	ctx := context.Background()
	user, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}

	if user.Email != req.Email {
		t.Fatalf("expected email %q got %q", req.Email, user.Email)
	}
	if user.Role != RoleMember {
		t.Fatalf("register: expected default role %s got %s", RoleMember, user.Role)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(user.VaultAddress) {
		t.Fatalf("register: vault address %q is not 64 hex characters", user.VaultAddress)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.User.ID != user.ID {
		t.Fatalf("login: expected user id %q got %q", user.ID, resp.User.ID)
	}

	identity, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if identity.UserID != user.ID {
		t.Fatalf("verify token: expected %q got %q", user.ID, identity.UserID)
	}
	if identity.Role != RoleMember {
		t.Fatalf("verify token: expected role %s got %s", RoleMember, identity.Role)
	}
	if identity.Address != user.VaultAddress {
		t.Fatalf("verify token: expected addr %q got %q", user.VaultAddress, identity.Address)
	}
}

func TestService_RegisterOperator(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	user, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "ops@example.com",
		Password: "strongpassword",
		FullName: "Olive Operator",
		Role:     RoleOperator,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != RoleOperator {
		t.Fatalf("expected role %s got %s", RoleOperator, user.Role)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "mallory@example.com",
		Password: "strongpassword",
		FullName: "Mallory",
		Role:     Role("superuser"),
	}); err == nil {
		t.Fatal("expected invalid role rejection")
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Password: "short",
		FullName: "Alice Payer",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "",
		Password: "strongpassword",
		FullName: "",
	}); err == nil {
		t.Fatal("expected validation error for missing fields")
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "alice@example.com",
		Password: "strongpassword",
		FullName: "Alice Payer",
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "bob@example.com",
		Password: "strongpassword",
		FullName: "Bob Builder",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = svc.Login(context.Background(), LoginRequest{
		Email:    "bob@example.com",
		Password: "wrongpassword",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestService_ExpiredToken(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret").
		WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) })

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "old@example.com",
		Password: "strongpassword",
		FullName: "Old Session",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resp, err := svc.Login(context.Background(), LoginRequest{
		Email:    "old@example.com",
		Password: "strongpassword",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.VerifyToken(resp.Token); err == nil {
		t.Fatal("expected expired token rejection")
	}
}

func TestService_VerifyTokenGarbage(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")
	if _, err := svc.VerifyToken("not-a-token"); err == nil {
		t.Fatal("expected parse failure")
	}

	other := NewService(newFakeRepository(), "other-secret")
	if _, err := other.Register(context.Background(), RegisterRequest{
		Email:    "eve@example.com",
		Password: "strongpassword",
		FullName: "Eve",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resp, err := other.Login(context.Background(), LoginRequest{
		Email:    "eve@example.com",
		Password: "strongpassword",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.VerifyToken(resp.Token); err == nil {
		t.Fatal("expected cross-secret rejection")
	}
}

type fakeRepository struct {
	usersByEmail map[string]User
	usersByID    map[string]User
	nextID       int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		usersByEmail: make(map[string]User),
		usersByID:    make(map[string]User),
		nextID:       1,
	}
}

func (f *fakeRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	if _, exists := f.usersByEmail[strings.ToLower(params.Email)]; exists {
		return User{}, ErrDuplicateEmail
	}

	id := fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	role := params.Role
	if role == "" {
		role = RoleMember
	}

	user := User{
		ID:           id,
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		VaultAddress: params.VaultAddress,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	f.usersByEmail[strings.ToLower(user.Email)] = user
	f.usersByID[user.ID] = user

	return user, nil
}

func (f *fakeRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (f *fakeRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, ok := f.usersByID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}
