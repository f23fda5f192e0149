package auth

import "time"

type Role string

const (
	// RoleMember can create, fund, verify, release and refund agreements,
	// subject to the engine's own capability checks.
	RoleMember Role = "member"
	// RoleOperator additionally holds the administrative surface: fee
	// recipient changes and the faucet.
	RoleOperator Role = "operator"
)

// User is the domain representation of an account. It mirrors the users
// table and carries no JSON annotations; presentation layers shape their own
// responses.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	// VaultAddress is the account's settlement identity: the address the
	// ledger keys balances by and the engine sees as caller.
	VaultAddress string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the verified content of a session token.
type Identity struct {
	UserID  string
	Role    Role
	Address string
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
