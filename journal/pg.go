package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"vaultflow/escrow"
)

// PGStore keeps the event log in a Postgres table. The (agreement_id, seq)
// primary key plus ON CONFLICT DO NOTHING make appends idempotent under
// at-least-once delivery.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS escrow_events (
    agreement_id BIGINT      NOT NULL,
    seq          BIGINT      NOT NULL,
    event_type   TEXT        NOT NULL,
    tick         BIGINT      NOT NULL,
    payload      JSONB       NOT NULL,
    recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (agreement_id, seq)
);
`

// EnsureSchema creates the event table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchemaSQL); err != nil {
		return fmt.Errorf("journal: ensure schema: %w", err)
	}
	return nil
}

// Append writes the batch in one transaction.
func (s *PGStore) Append(ctx context.Context, events []escrow.Event) error {
	const insertSQL = `
INSERT INTO escrow_events (agreement_id, seq, event_type, tick, payload)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (agreement_id, seq) DO NOTHING;
`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal: begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("journal: marshal payload %d/%d: %w", ev.AgreementID, ev.Seq, err)
		}
		_, err = tx.Exec(ctx, insertSQL,
			int64(ev.AgreementID), int64(ev.Seq), string(ev.Type), int64(ev.Tick), payload)
		if err != nil {
			return fmt.Errorf("journal: insert event %d/%d: %w", ev.AgreementID, ev.Seq, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journal: commit append: %w", err)
	}
	return nil
}

// Load returns every stored event grouped per agreement in sequence order.
func (s *PGStore) Load(ctx context.Context) ([]escrow.Event, error) {
	const selectSQL = `
SELECT agreement_id, seq, event_type, tick, payload
FROM escrow_events
ORDER BY agreement_id, seq;
`

	rows, err := s.pool.Query(ctx, selectSQL)
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
			payload     []byte
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
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("journal: decode payload %d/%d: %w", agreementID, seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate events: %w", err)
	}
	return events, nil
}
