package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRepository implements Repository backed by a single-file SQLite
// database. Identifiers are minted client-side.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the user store at path and ensures the
// schema.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("auth: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	r := &SQLiteRepository{db: db}
	if err := r.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) ensureSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		full_name     TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		vault_address TEXT NOT NULL UNIQUE,
		role          TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("auth: ensure schema: %w", err)
	}
	return nil
}

// CreateUser inserts a new account with hashed password.
func (r *SQLiteRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	const insertSQL = `
		INSERT INTO users (id, email, full_name, password_hash, vault_address, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		VaultAddress: params.VaultAddress,
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := r.db.ExecContext(ctx, insertSQL,
		user.ID, user.Email, user.FullName, user.PasswordHash, user.VaultAddress,
		string(user.Role), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("auth: create user: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves an account by email address.
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const selectSQL = `
		SELECT id, email, full_name, password_hash, vault_address, role, created_at, updated_at
		FROM users
		WHERE email = ?
	`
	return r.getUser(ctx, selectSQL, email)
}

// GetUserByID retrieves an account by ID.
func (r *SQLiteRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	const selectSQL = `
		SELECT id, email, full_name, password_hash, vault_address, role, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	return r.getUser(ctx, selectSQL, userID)
}

func (r *SQLiteRepository) getUser(ctx context.Context, query, arg string) (User, error) {
	var (
		user      User
		role      string
		createdAt string
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.VaultAddress,
		&role,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("auth: get user: %w", err)
	}

	user.Role = Role(role)
	if user.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return User{}, fmt.Errorf("auth: parse created_at: %w", err)
	}
	if user.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return User{}, fmt.Errorf("auth: parse updated_at: %w", err)
	}
	return user, nil
}
