package settle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"vaultflow/escrow"
)

// SQLiteLedger keeps balances in a single-file SQLite database. All access
// goes through one connection, so transactions serialize naturally; the
// busy_timeout pragma covers cross-process stragglers.
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the ledger at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("settle: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db}
	if err := l.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying database.
func (l *SQLiteLedger) Close() error { return l.db.Close() }

func (l *SQLiteLedger) ensureSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		addr    TEXT    PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0)
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id         TEXT    PRIMARY KEY,
		from_addr  TEXT,
		to_addr    TEXT    NOT NULL,
		amount     INTEGER NOT NULL,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("settle: ensure schema: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Open(ctx context.Context, addr escrow.Address) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (addr, balance) VALUES (?, 0)`, addr.String())
	if err != nil {
		return fmt.Errorf("settle: open account: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Credit(ctx context.Context, addr escrow.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settle: begin credit: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO accounts (addr, balance) VALUES (?, ?)
ON CONFLICT (addr) DO UPDATE SET balance = balance + excluded.balance`,
		addr.String(), int64(amount))
	if err != nil {
		return fmt.Errorf("settle: credit: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO transfers (id, from_addr, to_addr, amount) VALUES (?, NULL, ?, ?)`,
		uuid.NewString(), addr.String(), int64(amount))
	if err != nil {
		return fmt.Errorf("settle: record credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("settle: commit credit: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Move(ctx context.Context, from escrow.Address, payments ...escrow.Payment) error {
	total, err := paymentsTotal(payments)
	if err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settle: begin move: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE addr = ?`, from.String()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("settle: account %s: %w", from, ErrUnknownAccount)
	}
	if err != nil {
		return fmt.Errorf("settle: read balance: %w", err)
	}
	if uint64(balance) < total {
		return fmt.Errorf("settle: balance %d short of %d: %w", balance, total, ErrInsufficientFunds)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - ? WHERE addr = ?`,
		int64(total), from.String())
	if err != nil {
		return fmt.Errorf("settle: debit: %w", err)
	}
	for _, p := range payments {
		_, err = tx.ExecContext(ctx, `
INSERT INTO accounts (addr, balance) VALUES (?, ?)
ON CONFLICT (addr) DO UPDATE SET balance = balance + excluded.balance`,
			p.To.String(), int64(p.Amount))
		if err != nil {
			return fmt.Errorf("settle: credit leg: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transfers (id, from_addr, to_addr, amount) VALUES (?, ?, ?, ?)`,
			uuid.NewString(), from.String(), p.To.String(), int64(p.Amount))
		if err != nil {
			return fmt.Errorf("settle: record leg: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("settle: commit move: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Balance(ctx context.Context, addr escrow.Address) (uint64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE addr = ?`, addr.String()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("settle: account %s: %w", addr, ErrUnknownAccount)
	}
	if err != nil {
		return 0, fmt.Errorf("settle: read balance: %w", err)
	}
	return uint64(balance), nil
}
