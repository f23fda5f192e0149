package settle

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vaultflow/escrow"
)

// PGLedger keeps balances in Postgres. Moves lock every touched account row
// in address order before mutating, so concurrent transfers cannot deadlock,
// and each leg is journalled into the transfers table under a fresh UUID.
type PGLedger struct {
	pool *pgxpool.Pool
}

func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

const pgLedgerSchemaSQL = `
CREATE TABLE IF NOT EXISTS accounts (
    addr    TEXT   PRIMARY KEY,
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS transfers (
    id         UUID        PRIMARY KEY,
    from_addr  TEXT,
    to_addr    TEXT        NOT NULL,
    amount     BIGINT      NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the ledger tables if they do not exist.
func (l *PGLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, pgLedgerSchemaSQL); err != nil {
		return fmt.Errorf("settle: ensure schema: %w", err)
	}
	return nil
}

func (l *PGLedger) Open(ctx context.Context, addr escrow.Address) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO accounts (addr, balance) VALUES ($1, 0) ON CONFLICT (addr) DO NOTHING`,
		addr.String())
	if err != nil {
		return fmt.Errorf("settle: open account: %w", err)
	}
	return nil
}

func (l *PGLedger) Credit(ctx context.Context, addr escrow.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("settle: begin credit: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO accounts (addr, balance) VALUES ($1, $2)
ON CONFLICT (addr) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
		addr.String(), int64(amount))
	if err != nil {
		return fmt.Errorf("settle: credit: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO transfers (id, from_addr, to_addr, amount) VALUES ($1, NULL, $2, $3)`,
		uuid.NewString(), addr.String(), int64(amount))
	if err != nil {
		return fmt.Errorf("settle: record credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("settle: commit credit: %w", err)
	}
	return nil
}

func (l *PGLedger) Move(ctx context.Context, from escrow.Address, payments ...escrow.Payment) error {
	total, err := paymentsTotal(payments)
	if err != nil {
		return err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("settle: begin move: %w", err)
	}
	defer tx.Rollback(ctx)

	// Recipients may be first-touch accounts; the source must already exist.
	seen := map[string]bool{from.String(): true}
	addrs := []string{from.String()}
	for _, p := range payments {
		s := p.To.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		addrs = append(addrs, s)
		if _, err := tx.Exec(ctx,
			`INSERT INTO accounts (addr, balance) VALUES ($1, 0) ON CONFLICT (addr) DO NOTHING`, s); err != nil {
			return fmt.Errorf("settle: ensure account %s: %w", s, err)
		}
	}

	// Lock every touched row in address order, picking up the source
	// balance on the way.
	sort.Strings(addrs)
	var balance int64
	for _, a := range addrs {
		var b int64
		err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE addr = $1 FOR UPDATE`, a).Scan(&b)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("settle: account %s: %w", a, ErrUnknownAccount)
		}
		if err != nil {
			return fmt.Errorf("settle: lock account %s: %w", a, err)
		}
		if a == from.String() {
			balance = b
		}
	}
	if uint64(balance) < total {
		return fmt.Errorf("settle: balance %d short of %d: %w", balance, total, ErrInsufficientFunds)
	}

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $2 WHERE addr = $1`,
		from.String(), int64(total))
	if err != nil {
		return fmt.Errorf("settle: debit: %w", err)
	}
	for _, p := range payments {
		_, err = tx.Exec(ctx,
			`UPDATE accounts SET balance = balance + $2 WHERE addr = $1`,
			p.To.String(), int64(p.Amount))
		if err != nil {
			return fmt.Errorf("settle: credit leg: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO transfers (id, from_addr, to_addr, amount) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), from.String(), p.To.String(), int64(p.Amount))
		if err != nil {
			return fmt.Errorf("settle: record leg: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("settle: commit move: %w", err)
	}
	return nil
}

func (l *PGLedger) Balance(ctx context.Context, addr escrow.Address) (uint64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM accounts WHERE addr = $1`, addr.String()).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("settle: account %s: %w", addr, ErrUnknownAccount)
	}
	if err != nil {
		return 0, fmt.Errorf("settle: read balance: %w", err)
	}
	return uint64(balance), nil
}
