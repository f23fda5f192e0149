package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
)

const tokenTTL = 24 * time.Hour

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
	genAddr   func() (string, error)
	now       func() time.Time
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token string
	User  User
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		genAddr:   newVaultAddress,
		now:       time.Now,
	}
}

// WithAddressGenerator overrides vault address generation. For tests.
func (s *Service) WithAddressGenerator(gen func() (string, error)) *Service {
	s.genAddr = gen
	return s
}

// WithClock overrides the token timestamp source. For tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new account and mints its vault address.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	if req.Email == "" || req.FullName == "" {
		return nil, fmt.Errorf("auth: email and full_name are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleMember
	}
	if !isValidRole(role) {
		return nil, fmt.Errorf("auth: invalid role %q", role)
	}

	address, err := s.genAddr()
	if err != nil {
		return nil, fmt.Errorf("auth: generate vault address: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(passwordHash),
		VaultAddress: address,
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates an account and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token: token,
		User:  user,
	}, nil
}

// GetUserByID retrieves account information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyToken validates a JWT token and returns the identity it carries.
func (s *Service) VerifyToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("auth: invalid token")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("auth: invalid user_id in token")
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("auth: invalid role in token")
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return Identity{}, fmt.Errorf("auth: invalid role %q in token", roleStr)
	}
	address, ok := claims["addr"].(string)
	if !ok || address == "" {
		return Identity{}, fmt.Errorf("auth: invalid addr in token")
	}

	return Identity{UserID: userID, Role: role, Address: address}, nil
}

// generateToken creates a JWT token binding the account to its vault address.
func (s *Service) generateToken(user User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.Role,
		"addr":    user.VaultAddress,
		"exp":     now.Add(tokenTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// newVaultAddress mints a fresh settlement identity: 32 random bytes,
// hex-encoded to the ledger's 64-character address width.
func newVaultAddress() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleMember, RoleOperator:
		return true
	default:
		return false
	}
}
