package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vaultflow/escrow"
)

// SQLiteStore keeps the event log in a single-file SQLite database. WAL mode
// plus a generous busy timeout lets the drain loop and readers coexist;
// INSERT OR IGNORE on the composite key gives the same redelivery tolerance
// as the Postgres store.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) ensureSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS escrow_events (
		agreement_id INTEGER NOT NULL,
		seq          INTEGER NOT NULL,
		event_type   TEXT    NOT NULL,
		tick         INTEGER NOT NULL,
		payload      TEXT    NOT NULL,
		recorded_at  TEXT    NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (agreement_id, seq)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("journal: ensure schema: %w", err)
	}
	return nil
}

// Append writes the batch in one transaction, retrying on transient lock
// contention.
func (s *SQLiteStore) Append(ctx context.Context, events []escrow.Event) error {
	return retrySQLite(func() error {
		return s.appendOnce(ctx, events)
	})
}

func (s *SQLiteStore) appendOnce(ctx context.Context, events []escrow.Event) error {
	const insertSQL = `
INSERT OR IGNORE INTO escrow_events (agreement_id, seq, event_type, tick, payload)
VALUES (?, ?, ?, ?, ?);
`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: begin append: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("journal: marshal payload %d/%d: %w", ev.AgreementID, ev.Seq, err)
		}
		_, err = tx.ExecContext(ctx, insertSQL,
			int64(ev.AgreementID), int64(ev.Seq), string(ev.Type), int64(ev.Tick), string(payload))
		if err != nil {
			return fmt.Errorf("journal: insert event %d/%d: %w", ev.AgreementID, ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: commit append: %w", err)
	}
	return nil
}

// Load returns every stored event grouped per agreement in sequence order.
func (s *SQLiteStore) Load(ctx context.Context) ([]escrow.Event, error) {
	const selectSQL = `
SELECT agreement_id, seq, event_type, tick, payload
FROM escrow_events
ORDER BY agreement_id, seq;
`

	rows, err := s.db.QueryContext(ctx, selectSQL)
	if err != nil {
		return nil, fmt.Errorf("journal: load events: %w", err)
	}
	defer rows.Close()

	var events []escrow.Event
	for rows.Next() {
		var (
			agreementID int64
			seq         int64
			eventType   string
			tick        int64
			payload     string
		)
		if err := rows.Scan(&agreementID, &seq, &eventType, &tick, &payload); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		ev := escrow.Event{
			Type:        escrow.EventType(eventType),
			AgreementID: escrow.AgreementID(agreementID),
			Seq:         uint64(seq),
			Tick:        uint64(tick),
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("journal: decode payload %d/%d: %w", agreementID, seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate events: %w", err)
	}
	return events, nil
}

const sqliteRetries = 3

// retrySQLite retries fn on SQLITE_BUSY and SQLITE_LOCKED. The busy_timeout
// pragma covers most contention at the connection level; this catches the
// fallthrough under heavy concurrent writes.
func retrySQLite(fn func() error) error {
	var err error
	for attempt := 0; attempt <= sqliteRetries; attempt++ {
		if err = fn(); err == nil || !isTransientSQLite(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

func isTransientSQLite(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
